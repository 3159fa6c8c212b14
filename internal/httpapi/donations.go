package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/civicmap/civicmap/internal/middleware"
	"github.com/civicmap/civicmap/internal/payments"
	"github.com/civicmap/civicmap/internal/services/donations"
)

func (h *handler) startDonation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AmountCents int64  `json:"amount_cents"`
		Email       string `json:"email"`
		Name        string `json:"name"`
		Message     string `json:"message"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	d, checkoutURL, err := h.svc.Donations.StartDonation(r.Context(), donations.DonationInput{
		AmountCents: payload.AmountCents,
		Email:       payload.Email,
		Name:        payload.Name,
		Message:     payload.Message,
		UserID:      middleware.UserID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"donation":     d,
		"checkout_url": checkoutURL,
	})
}

func (h *handler) listDonations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Donations.ListCompleted(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) startReportPurchase(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email      string            `json:"email"`
		ReportType string            `json:"report_type"`
		Params     map[string]string `json:"params"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	p, checkoutURL, err := h.svc.Donations.StartReportPurchase(r.Context(), payload.Email, payload.ReportType, payload.Params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"purchase":     p,
		"checkout_url": checkoutURL,
	})
}

// stripeWebhook verifies the signature over the raw body before reacting to
// the event. Unverifiable requests get 400 so the provider retries.
func (h *handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if err := payments.VerifySignature(body, sig, h.cfg.WebhookSecret, time.Now(), payments.DefaultTolerance); err != nil {
		h.log.WithError(err).Warn("webhook signature rejected")
		if h.metrics != nil {
			h.metrics.RecordWebhookEvent("unknown", "rejected")
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	evt, err := payments.ParseEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.svc.Donations.HandleEvent(r.Context(), evt); err != nil {
		h.log.WithError(err).WithField("event", evt.Type).Error("webhook handling failed")
		if h.metrics != nil {
			h.metrics.RecordWebhookEvent(evt.Type, "error")
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(evt.Type, "ok")
	}
	writeJSON(w, http.StatusOK, map[string]string{"received": evt.ID})
}
