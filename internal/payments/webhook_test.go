package payments

import (
	"errors"
	"testing"
	"time"
)

const webhookSecret = "whsec_test"

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	now := time.Now()
	header := SignPayload(payload, webhookSecret, now)

	if err := VerifySignature(payload, header, webhookSecret, now, DefaultTolerance); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, "whsec_other", now)

	err := VerifySignature(payload, header, webhookSecret, now, DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureTamperedPayload(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()
	header := SignPayload(payload, webhookSecret, now)

	err := VerifySignature([]byte(`{"id":"evt_2"}`), header, webhookSecret, now, DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signed := time.Now().Add(-10 * time.Minute)
	header := SignPayload(payload, webhookSecret, signed)

	err := VerifySignature(payload, header, webhookSecret, time.Now(), DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignatureMissingHeader(t *testing.T) {
	err := VerifySignature([]byte(`{}`), "", webhookSecret, time.Now(), DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseEventCheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_123",
			"payment_intent": "pi_456",
			"amount_total": 2500,
			"customer_details": {"email": "donor@example.org"},
			"metadata": {"kind": "donation"}
		}}
	}`)

	evt, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if evt.Type != EventCheckoutCompleted {
		t.Fatalf("type = %q", evt.Type)
	}
	if evt.SessionID != "cs_test_123" {
		t.Fatalf("session = %q", evt.SessionID)
	}
	if evt.PaymentIntentID != "pi_456" {
		t.Fatalf("payment intent = %q", evt.PaymentIntentID)
	}
	if evt.AmountCents != 2500 {
		t.Fatalf("amount = %d", evt.AmountCents)
	}
	if evt.CustomerEmail != "donor@example.org" {
		t.Fatalf("email = %q", evt.CustomerEmail)
	}
	if evt.Metadata["kind"] != "donation" {
		t.Fatalf("metadata = %v", evt.Metadata)
	}
}

func TestParseEventChargeRefunded(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"type": "charge.refunded",
		"data": {"object": {"payment_intent": "pi_456", "amount_refunded": 2500}}
	}`)

	evt, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if evt.PaymentIntentID != "pi_456" || evt.AmountCents != 2500 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestParseEventMissingType(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"id":"evt_3"}`)); err == nil {
		t.Fatal("expected error for event without type")
	}
}
