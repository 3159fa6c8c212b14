package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/civicmap/civicmap/internal/domain/donation"
)

const donationColumns = `id, amount_cents, currency, status, stripe_session_id,
	COALESCE(payment_intent_id, '') AS payment_intent_id, COALESCE(donor_email, '') AS donor_email,
	COALESCE(donor_name, '') AS donor_name, COALESCE(message, '') AS message, user_id,
	created_at, updated_at`

func (s *Store) CreateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.exec(ctx, "donation", d.StripeSessionID, `
		INSERT INTO donations (id, amount_cents, currency, status, stripe_session_id,
			payment_intent_id, donor_email, donor_name, message, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, d.ID, d.AmountCents, d.Currency, d.Status, d.StripeSessionID,
		toNullString(d.PaymentIntentID), toNullString(d.DonorEmail), toNullString(d.DonorName),
		toNullString(d.Message), d.UserID, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return donation.Donation{}, err
	}
	return d, nil
}

func (s *Store) UpdateDonation(ctx context.Context, d donation.Donation) (donation.Donation, error) {
	existing, err := s.GetDonation(ctx, d.ID)
	if err != nil {
		return donation.Donation{}, err
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	res, err := s.exec(ctx, "donation", d.ID, `
		UPDATE donations
		SET amount_cents = $2, currency = $3, status = $4, payment_intent_id = $5,
			donor_email = $6, donor_name = $7, message = $8, user_id = $9, updated_at = $10
		WHERE id = $1
	`, d.ID, d.AmountCents, d.Currency, d.Status, toNullString(d.PaymentIntentID),
		toNullString(d.DonorEmail), toNullString(d.DonorName), toNullString(d.Message),
		d.UserID, d.UpdatedAt)
	if err != nil {
		return donation.Donation{}, err
	}
	if err := rowsAffected(res, "donation", d.ID); err != nil {
		return donation.Donation{}, err
	}
	return d, nil
}

func (s *Store) GetDonation(ctx context.Context, id string) (donation.Donation, error) {
	var d donation.Donation
	err := s.db.GetContext(ctx, &d, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id)
	if err != nil {
		return donation.Donation{}, mapErr(err, "donation", id)
	}
	return d, nil
}

func (s *Store) GetDonationBySession(ctx context.Context, sessionID string) (donation.Donation, error) {
	var d donation.Donation
	err := s.db.GetContext(ctx, &d, `SELECT `+donationColumns+` FROM donations WHERE stripe_session_id = $1`, sessionID)
	if err != nil {
		return donation.Donation{}, mapErr(err, "donation session", sessionID)
	}
	return d, nil
}

func (s *Store) GetDonationByPaymentIntent(ctx context.Context, paymentIntentID string) (donation.Donation, error) {
	var d donation.Donation
	err := s.db.GetContext(ctx, &d, `SELECT `+donationColumns+` FROM donations WHERE payment_intent_id = $1`, paymentIntentID)
	if err != nil {
		return donation.Donation{}, mapErr(err, "donation intent", paymentIntentID)
	}
	return d, nil
}

func (s *Store) ListDonations(ctx context.Context, status donation.Status) ([]donation.Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	var result []donation.Donation
	if err := s.db.SelectContext(ctx, &result, query, args...); err != nil {
		return nil, err
	}
	return result, nil
}

const purchaseColumns = `id, email, amount_cents, currency, status, stripe_session_id,
	report_type, COALESCE(report_params, '') AS report_params,
	download_token, download_count, downloaded_at, expires_at, created_at, updated_at`

func (s *Store) CreateReportPurchase(ctx context.Context, p donation.ReportPurchase) (donation.ReportPurchase, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.exec(ctx, "purchase", p.StripeSessionID, `
		INSERT INTO report_purchases (id, email, amount_cents, currency, status, stripe_session_id,
			report_type, report_params, download_token, download_count, downloaded_at, expires_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.ID, p.Email, p.AmountCents, p.Currency, p.Status, p.StripeSessionID,
		p.ReportType, toNullString(p.Params), p.DownloadToken, p.DownloadCount,
		toNullTime(p.DownloadedAt), toNullTime(p.ExpiresAt), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return donation.ReportPurchase{}, err
	}
	return p, nil
}

func (s *Store) UpdateReportPurchase(ctx context.Context, p donation.ReportPurchase) (donation.ReportPurchase, error) {
	existing, err := s.getReportPurchase(ctx, p.ID)
	if err != nil {
		return donation.ReportPurchase{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	res, err := s.exec(ctx, "purchase", p.ID, `
		UPDATE report_purchases
		SET email = $2, amount_cents = $3, currency = $4, status = $5, report_type = $6,
			report_params = $7, download_token = $8, download_count = $9, downloaded_at = $10,
			expires_at = $11, updated_at = $12
		WHERE id = $1
	`, p.ID, p.Email, p.AmountCents, p.Currency, p.Status, p.ReportType, toNullString(p.Params),
		p.DownloadToken, p.DownloadCount, toNullTime(p.DownloadedAt), toNullTime(p.ExpiresAt), p.UpdatedAt)
	if err != nil {
		return donation.ReportPurchase{}, err
	}
	if err := rowsAffected(res, "purchase", p.ID); err != nil {
		return donation.ReportPurchase{}, err
	}
	return p, nil
}

func (s *Store) getReportPurchase(ctx context.Context, id string) (donation.ReportPurchase, error) {
	var p donation.ReportPurchase
	err := s.db.GetContext(ctx, &p, `SELECT `+purchaseColumns+` FROM report_purchases WHERE id = $1`, id)
	if err != nil {
		return donation.ReportPurchase{}, mapErr(err, "purchase", id)
	}
	return p, nil
}

func (s *Store) GetReportPurchaseBySession(ctx context.Context, sessionID string) (donation.ReportPurchase, error) {
	var p donation.ReportPurchase
	err := s.db.GetContext(ctx, &p, `SELECT `+purchaseColumns+` FROM report_purchases WHERE stripe_session_id = $1`, sessionID)
	if err != nil {
		return donation.ReportPurchase{}, mapErr(err, "purchase session", sessionID)
	}
	return p, nil
}

func (s *Store) GetReportPurchaseByToken(ctx context.Context, token string) (donation.ReportPurchase, error) {
	var p donation.ReportPurchase
	err := s.db.GetContext(ctx, &p, `SELECT `+purchaseColumns+` FROM report_purchases WHERE download_token = $1`, token)
	if err != nil {
		return donation.ReportPurchase{}, mapErr(err, "purchase token", "")
	}
	return p, nil
}
