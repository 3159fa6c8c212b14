// Package donation defines payments made through the checkout provider.
package donation

import "time"

// Status values a donation moves through, driven by checkout webhooks.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Donation is one checkout session. AmountCents is the charged amount in the
// currency's minor unit; StripeSessionID is unique so webhook retries are
// idempotent.
type Donation struct {
	ID              string    `db:"id" json:"id"`
	AmountCents     int64     `db:"amount_cents" json:"amount_cents"`
	Currency        string    `db:"currency" json:"currency"`
	Status          Status    `db:"status" json:"status"`
	StripeSessionID string    `db:"stripe_session_id" json:"stripe_session_id"`
	PaymentIntentID string    `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	DonorEmail      string    `db:"donor_email" json:"donor_email,omitempty"`
	DonorName       string    `db:"donor_name" json:"donor_name,omitempty"`
	Message         string    `db:"message" json:"message,omitempty"`
	UserID          *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ReportPurchase is a paid analytics report download. The token gates the
// download and expires after ExpiresAt; until then it may be used more than
// once, with DownloadCount and DownloadedAt tracking use.
type ReportPurchase struct {
	ID              string `db:"id" json:"id"`
	Email           string `db:"email" json:"email"`
	AmountCents     int64  `db:"amount_cents" json:"amount_cents"`
	Currency        string `db:"currency" json:"currency"`
	Status          Status `db:"status" json:"status"`
	StripeSessionID string `db:"stripe_session_id" json:"stripe_session_id"`
	// ReportType names the product bought; Params carries its serialized
	// generation parameters as a JSON string.
	ReportType    string     `db:"report_type" json:"report_type"`
	Params        string     `db:"report_params" json:"report_params,omitempty"`
	DownloadToken string     `db:"download_token" json:"-"`
	DownloadCount int        `db:"download_count" json:"download_count"`
	DownloadedAt  *time.Time `db:"downloaded_at" json:"downloaded_at,omitempty"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Downloadable reports whether the purchase grants access right now.
func (p ReportPurchase) Downloadable(now time.Time) bool {
	if p.Status != StatusCompleted {
		return false
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return false
	}
	return true
}
