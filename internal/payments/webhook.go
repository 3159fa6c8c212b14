package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Webhook event types the service reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentSucceeded  = "payment_intent.succeeded"
	EventChargeRefunded    = "charge.refunded"
)

// ErrInvalidSignature marks a webhook whose signature did not verify.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// DefaultTolerance bounds how old a signed webhook timestamp may be.
const DefaultTolerance = 5 * time.Minute

// Event is a parsed webhook notification.
type Event struct {
	ID   string
	Type string
	// SessionID is the checkout session the event refers to, when present.
	SessionID string
	// PaymentIntentID accompanies payment and refund events.
	PaymentIntentID string
	// AmountCents is the amount reported by the event, when present.
	AmountCents int64
	// CustomerEmail comes from the session's customer details.
	CustomerEmail string
	// Metadata echoes what was attached at session creation.
	Metadata map[string]string
}

// VerifySignature checks the Stripe-Signature header against the payload.
// The header carries a timestamp and one or more v1 HMAC-SHA256 signatures
// over "<timestamp>.<payload>".
func VerifySignature(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	if header == "" {
		return fmt.Errorf("missing signature header: %w", ErrInvalidSignature)
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var (
		timestamp  int64
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("malformed timestamp: %w", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(kv[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("incomplete signature header: %w", ErrInvalidSignature)
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("timestamp outside tolerance: %w", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignPayload produces a Stripe-Signature header value for the payload. Used
// by tests and local tooling.
func SignPayload(payload []byte, secret string, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// ParseEvent extracts the fields the service reacts to from a verified
// payload.
func ParseEvent(payload []byte) (Event, error) {
	root := gjson.ParseBytes(payload)
	evt := Event{
		ID:   root.Get("id").String(),
		Type: root.Get("type").String(),
	}
	if evt.Type == "" {
		return Event{}, fmt.Errorf("event missing type")
	}

	obj := root.Get("data.object")
	switch evt.Type {
	case EventCheckoutCompleted:
		evt.SessionID = obj.Get("id").String()
		evt.PaymentIntentID = obj.Get("payment_intent").String()
		evt.AmountCents = obj.Get("amount_total").Int()
		evt.CustomerEmail = obj.Get("customer_details.email").String()
	case EventPaymentSucceeded:
		evt.PaymentIntentID = obj.Get("id").String()
		evt.AmountCents = obj.Get("amount").Int()
	case EventChargeRefunded:
		evt.PaymentIntentID = obj.Get("payment_intent").String()
		evt.AmountCents = obj.Get("amount_refunded").Int()
	}

	if meta := obj.Get("metadata"); meta.Exists() && meta.IsObject() {
		evt.Metadata = make(map[string]string)
		meta.ForEach(func(key, value gjson.Result) bool {
			evt.Metadata[key.String()] = value.String()
			return true
		})
	}
	return evt, nil
}
