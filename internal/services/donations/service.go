// Package donations drives checkout sessions for donations and paid report
// downloads, and reconciles them from payment webhooks.
package donations

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/civicmap/civicmap/internal/domain/donation"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/payments"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Checkouter creates checkout sessions. *payments.Client satisfies it; tests
// substitute a fake.
type Checkouter interface {
	CreateCheckoutSession(ctx context.Context, params payments.CheckoutParams) (payments.CheckoutSession, error)
}

// Config tunes the donation service.
type Config struct {
	Currency string
	// ReportPriceCents is the fixed price of the analytics report download.
	ReportPriceCents int64
	// ReportLinkTTL bounds how long a purchased download link stays valid.
	ReportLinkTTL time.Duration
	SuccessURL    string
	CancelURL     string
	BaseURL       string
}

// Service manages donations and report purchases.
type Service struct {
	store    storage.DonationStore
	checkout Checkouter
	mail     *mailer.Service
	cfg      Config
	log      *logger.Logger
}

// New constructs a donation service.
func New(store storage.DonationStore, checkout Checkouter, mail *mailer.Service, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("donations")
	}
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	if cfg.ReportPriceCents <= 0 {
		cfg.ReportPriceCents = 4900
	}
	if cfg.ReportLinkTTL <= 0 {
		cfg.ReportLinkTTL = 72 * time.Hour
	}
	return &Service{store: store, checkout: checkout, mail: mail, cfg: cfg, log: log}
}

// DonationInput describes a donation checkout to start.
type DonationInput struct {
	AmountCents int64
	Email       string
	Name        string
	Message     string
	UserID      string
}

// Minimum accepted donation, in cents.
const MinDonationCents = 100

// StartDonation creates a checkout session and records a pending donation.
// The returned URL is where the donor completes payment.
func (s *Service) StartDonation(ctx context.Context, in DonationInput) (donation.Donation, string, error) {
	if in.AmountCents < MinDonationCents {
		return donation.Donation{}, "", fmt.Errorf("donation must be at least %d cents", MinDonationCents)
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, payments.CheckoutParams{
		AmountCents:   in.AmountCents,
		Currency:      s.cfg.Currency,
		ProductName:   "Donació CivicMap",
		CustomerEmail: in.Email,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
		Metadata:      map[string]string{"kind": "donation"},
	})
	if err != nil {
		return donation.Donation{}, "", fmt.Errorf("create checkout session: %w", err)
	}

	d := donation.Donation{
		AmountCents:     in.AmountCents,
		Currency:        s.cfg.Currency,
		Status:          donation.StatusPending,
		StripeSessionID: session.ID,
		DonorEmail:      strings.TrimSpace(in.Email),
		DonorName:       strings.TrimSpace(in.Name),
		Message:         strings.TrimSpace(in.Message),
	}
	if in.UserID != "" {
		d.UserID = &in.UserID
	}
	created, err := s.store.CreateDonation(ctx, d)
	if err != nil {
		return donation.Donation{}, "", err
	}
	s.log.WithField("donation_id", created.ID).WithField("amount_cents", in.AmountCents).Info("donation started")
	return created, session.URL, nil
}

// DefaultReportType is bought when the request names no other product.
const DefaultReportType = "full_export"

// StartReportPurchase creates a checkout session for a paid data report.
// params, when present, are the report's generation parameters and are stored
// serialized alongside the purchase.
func (s *Service) StartReportPurchase(ctx context.Context, email, reportType string, params map[string]string) (donation.ReportPurchase, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return donation.ReportPurchase{}, "", fmt.Errorf("a valid email is required")
	}
	reportType = strings.TrimSpace(reportType)
	if reportType == "" {
		reportType = DefaultReportType
	}
	serialized := ""
	if len(params) > 0 {
		raw, err := json.Marshal(params)
		if err != nil {
			return donation.ReportPurchase{}, "", fmt.Errorf("serialize report params: %w", err)
		}
		serialized = string(raw)
	}

	token, err := newToken()
	if err != nil {
		return donation.ReportPurchase{}, "", err
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, payments.CheckoutParams{
		AmountCents:   s.cfg.ReportPriceCents,
		Currency:      s.cfg.Currency,
		ProductName:   "Informe de dades CivicMap",
		CustomerEmail: email,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
		Metadata:      map[string]string{"kind": "report", "report_type": reportType},
	})
	if err != nil {
		return donation.ReportPurchase{}, "", fmt.Errorf("create checkout session: %w", err)
	}

	created, err := s.store.CreateReportPurchase(ctx, donation.ReportPurchase{
		Email:           email,
		AmountCents:     s.cfg.ReportPriceCents,
		Currency:        s.cfg.Currency,
		Status:          donation.StatusPending,
		StripeSessionID: session.ID,
		ReportType:      reportType,
		Params:          serialized,
		DownloadToken:   token,
	})
	if err != nil {
		return donation.ReportPurchase{}, "", err
	}
	s.log.WithField("purchase_id", created.ID).Info("report purchase started")
	return created, session.URL, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HandleEvent reconciles a verified webhook event. Replayed events are
// idempotent: a donation already in its target state is left untouched.
func (s *Service) HandleEvent(ctx context.Context, evt payments.Event) error {
	switch evt.Type {
	case payments.EventCheckoutCompleted:
		return s.completeCheckout(ctx, evt)
	case payments.EventChargeRefunded:
		return s.markRefunded(ctx, evt)
	case payments.EventPaymentSucceeded:
		// Informational; the session-completed event drives state.
		return nil
	default:
		s.log.WithField("type", evt.Type).Debug("ignoring webhook event")
		return nil
	}
}

func (s *Service) completeCheckout(ctx context.Context, evt payments.Event) error {
	if evt.SessionID == "" {
		return fmt.Errorf("checkout event without session id")
	}

	if d, err := s.store.GetDonationBySession(ctx, evt.SessionID); err == nil {
		return s.completeDonation(ctx, d, evt)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if p, err := s.store.GetReportPurchaseBySession(ctx, evt.SessionID); err == nil {
		return s.completePurchase(ctx, p, evt)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	s.log.WithField("session_id", evt.SessionID).Warn("checkout event for unknown session")
	return nil
}

func (s *Service) completeDonation(ctx context.Context, d donation.Donation, evt payments.Event) error {
	if d.Status == donation.StatusCompleted {
		return nil
	}
	d.Status = donation.StatusCompleted
	d.PaymentIntentID = evt.PaymentIntentID
	if d.DonorEmail == "" {
		d.DonorEmail = evt.CustomerEmail
	}
	updated, err := s.store.UpdateDonation(ctx, d)
	if err != nil {
		return err
	}
	s.log.WithField("donation_id", updated.ID).Info("donation completed")

	if s.mail != nil && updated.DonorEmail != "" {
		html, err := mailer.Render(mailer.TemplateDonationReceipt, map[string]interface{}{
			"Name":   updated.DonorName,
			"Amount": formatAmount(updated.AmountCents, updated.Currency),
		})
		if err != nil {
			s.log.WithError(err).Error("render donation receipt")
			return nil
		}
		if err := s.mail.Send(ctx, mailer.Message{
			To:      []string{updated.DonorEmail},
			Subject: "Gràcies per la teva donació",
			HTML:    html,
		}); err != nil {
			s.log.WithError(err).Warn("donation receipt failed")
		}
	}
	return nil
}

func (s *Service) completePurchase(ctx context.Context, p donation.ReportPurchase, evt payments.Event) error {
	if p.Status == donation.StatusCompleted {
		return nil
	}
	p.Status = donation.StatusCompleted
	expires := time.Now().UTC().Add(s.cfg.ReportLinkTTL)
	p.ExpiresAt = &expires

	updated, err := s.store.UpdateReportPurchase(ctx, p)
	if err != nil {
		return err
	}
	s.log.WithField("purchase_id", updated.ID).Info("report purchase completed")

	if s.mail != nil {
		url := strings.TrimRight(s.cfg.BaseURL, "/") + "/api/analytics/report/" + updated.DownloadToken
		html, err := mailer.Render(mailer.TemplateReportDownload, map[string]interface{}{
			"URL":       url,
			"ExpiresAt": expires.Format("02/01/2006 15:04"),
		})
		if err != nil {
			s.log.WithError(err).Error("render download email")
			return nil
		}
		if err := s.mail.Send(ctx, mailer.Message{
			To:      []string{updated.Email},
			Subject: "El teu informe de dades",
			HTML:    html,
		}); err != nil {
			s.log.WithError(err).Warn("download email failed")
		}
	}
	return nil
}

func (s *Service) markRefunded(ctx context.Context, evt payments.Event) error {
	if evt.PaymentIntentID == "" {
		return fmt.Errorf("refund event without payment intent")
	}
	d, err := s.store.GetDonationByPaymentIntent(ctx, evt.PaymentIntentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.log.WithField("payment_intent", evt.PaymentIntentID).Warn("refund for unknown donation")
			return nil
		}
		return err
	}
	if d.Status == donation.StatusRefunded {
		return nil
	}
	d.Status = donation.StatusRefunded
	if _, err := s.store.UpdateDonation(ctx, d); err != nil {
		return err
	}
	s.log.WithField("donation_id", d.ID).Info("donation refunded")
	return nil
}

// ValidateDownload returns the purchase behind a token when it still grants
// access, and records the download. The link stays usable until it expires.
func (s *Service) ValidateDownload(ctx context.Context, token string) (donation.ReportPurchase, error) {
	p, err := s.store.GetReportPurchaseByToken(ctx, token)
	if err != nil {
		return donation.ReportPurchase{}, err
	}
	now := time.Now().UTC()
	if !p.Downloadable(now) {
		return donation.ReportPurchase{}, fmt.Errorf("download link is no longer valid")
	}
	p.DownloadCount++
	p.DownloadedAt = &now
	return s.store.UpdateReportPurchase(ctx, p)
}

// ListCompleted returns completed donations, newest last.
func (s *Service) ListCompleted(ctx context.Context) ([]donation.Donation, error) {
	return s.store.ListDonations(ctx, donation.StatusCompleted)
}

func formatAmount(cents int64, currency string) string {
	symbol := strings.ToUpper(currency)
	if symbol == "EUR" {
		symbol = "€"
	}
	return fmt.Sprintf("%d,%02d %s", cents/100, cents%100, symbol)
}
