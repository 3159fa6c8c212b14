package donations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/civicmap/civicmap/internal/domain/donation"
	"github.com/civicmap/civicmap/internal/payments"
	"github.com/civicmap/civicmap/internal/storage/memory"
)

// fakeCheckout hands out deterministic sessions without calling the provider.
type fakeCheckout struct {
	sessions   int
	lastParams payments.CheckoutParams
	fail       bool
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, params payments.CheckoutParams) (payments.CheckoutSession, error) {
	if f.fail {
		return payments.CheckoutSession{}, fmt.Errorf("provider unavailable")
	}
	f.sessions++
	f.lastParams = params
	id := fmt.Sprintf("cs_test_%d", f.sessions)
	return payments.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}, nil
}

func newTestService(checkout Checkouter) *Service {
	return New(memory.New(), checkout, nil, Config{
		Currency:         "eur",
		ReportPriceCents: 4900,
		ReportLinkTTL:    time.Hour,
		BaseURL:          "https://civicmap.test",
	}, nil)
}

func TestStartDonation(t *testing.T) {
	checkout := &fakeCheckout{}
	svc := newTestService(checkout)

	d, url, err := svc.StartDonation(context.Background(), DonationInput{
		AmountCents: 1500,
		Email:       "donant@example.com",
		Name:        "Donant",
	})
	if err != nil {
		t.Fatalf("start donation: %v", err)
	}
	if d.Status != donation.StatusPending {
		t.Fatalf("new donation should be pending: %s", d.Status)
	}
	if d.StripeSessionID != "cs_test_1" {
		t.Fatalf("session not recorded: %s", d.StripeSessionID)
	}
	if url == "" {
		t.Fatal("checkout url missing")
	}
	if checkout.lastParams.AmountCents != 1500 || checkout.lastParams.Metadata["kind"] != "donation" {
		t.Fatalf("unexpected checkout params: %+v", checkout.lastParams)
	}
}

func TestStartDonationRejectsSmallAmounts(t *testing.T) {
	svc := newTestService(&fakeCheckout{})
	if _, _, err := svc.StartDonation(context.Background(), DonationInput{AmountCents: 50}); err == nil {
		t.Fatal("expected minimum amount rejection")
	}
}

func TestStartDonationProviderFailure(t *testing.T) {
	svc := newTestService(&fakeCheckout{fail: true})
	if _, _, err := svc.StartDonation(context.Background(), DonationInput{AmountCents: 1000}); err == nil {
		t.Fatal("expected provider error to propagate")
	}
	// Nothing should have been stored.
	list, err := svc.store.ListDonations(context.Background(), donation.StatusPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("donation recorded despite failure: %d", len(list))
	}
}

func TestCheckoutCompletedIsIdempotent(t *testing.T) {
	svc := newTestService(&fakeCheckout{})

	d, _, err := svc.StartDonation(context.Background(), DonationInput{AmountCents: 2000, Email: "a@b.c"})
	if err != nil {
		t.Fatalf("start donation: %v", err)
	}

	evt := payments.Event{
		ID:              "evt_1",
		Type:            payments.EventCheckoutCompleted,
		SessionID:       d.StripeSessionID,
		PaymentIntentID: "pi_1",
	}
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	completed, err := svc.store.GetDonation(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("get donation: %v", err)
	}
	if completed.Status != donation.StatusCompleted {
		t.Fatalf("status: %s", completed.Status)
	}
	if completed.PaymentIntentID != "pi_1" {
		t.Fatalf("payment intent: %s", completed.PaymentIntentID)
	}

	// A replayed event leaves the donation untouched.
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("replayed event: %v", err)
	}

	list, err := svc.ListCompleted(context.Background())
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("completed donations: %d", len(list))
	}
}

func TestCheckoutCompletedForUnknownSession(t *testing.T) {
	svc := newTestService(&fakeCheckout{})
	err := svc.HandleEvent(context.Background(), payments.Event{
		ID:        "evt_x",
		Type:      payments.EventCheckoutCompleted,
		SessionID: "cs_unknown",
	})
	if err != nil {
		t.Fatalf("unknown session should not error: %v", err)
	}
}

func TestRefundMarksDonation(t *testing.T) {
	svc := newTestService(&fakeCheckout{})

	d, _, err := svc.StartDonation(context.Background(), DonationInput{AmountCents: 2000})
	if err != nil {
		t.Fatalf("start donation: %v", err)
	}
	if err := svc.HandleEvent(context.Background(), payments.Event{
		Type:            payments.EventCheckoutCompleted,
		SessionID:       d.StripeSessionID,
		PaymentIntentID: "pi_9",
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := svc.HandleEvent(context.Background(), payments.Event{
		Type:            payments.EventChargeRefunded,
		PaymentIntentID: "pi_9",
	}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	refunded, err := svc.store.GetDonation(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("get donation: %v", err)
	}
	if refunded.Status != donation.StatusRefunded {
		t.Fatalf("status: %s", refunded.Status)
	}
}

func TestReportPurchaseLifecycle(t *testing.T) {
	svc := newTestService(&fakeCheckout{})

	p, _, err := svc.StartReportPurchase(context.Background(), "compradora@example.com", "", nil)
	if err != nil {
		t.Fatalf("start purchase: %v", err)
	}
	if len(p.DownloadToken) != 64 {
		t.Fatalf("token length: %d", len(p.DownloadToken))
	}
	if p.ReportType != DefaultReportType {
		t.Fatalf("default report type: %s", p.ReportType)
	}
	if p.DownloadedAt != nil {
		t.Fatal("downloaded-at set before any download")
	}

	// Before payment the token grants nothing.
	if _, err := svc.ValidateDownload(context.Background(), p.DownloadToken); err == nil {
		t.Fatal("unpaid purchase should not be downloadable")
	}

	if err := svc.HandleEvent(context.Background(), payments.Event{
		Type:      payments.EventCheckoutCompleted,
		SessionID: p.StripeSessionID,
	}); err != nil {
		t.Fatalf("complete purchase: %v", err)
	}

	got, err := svc.ValidateDownload(context.Background(), p.DownloadToken)
	if err != nil {
		t.Fatalf("validate download: %v", err)
	}
	if got.DownloadCount != 1 {
		t.Fatalf("download count: %d", got.DownloadCount)
	}
	if got.DownloadedAt == nil {
		t.Fatal("downloaded-at not recorded")
	}

	// The link stays valid until it expires.
	got, err = svc.ValidateDownload(context.Background(), p.DownloadToken)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}
	if got.DownloadCount != 2 {
		t.Fatalf("download count: %d", got.DownloadCount)
	}
}

func TestReportPurchaseRecordsTypeAndParams(t *testing.T) {
	checkout := &fakeCheckout{}
	svc := newTestService(checkout)

	p, _, err := svc.StartReportPurchase(context.Background(), "compradora@example.com", "zone_summary",
		map[string]string{"district": "01"})
	if err != nil {
		t.Fatalf("start purchase: %v", err)
	}
	if p.ReportType != "zone_summary" {
		t.Fatalf("report type: %s", p.ReportType)
	}
	if p.Params != `{"district":"01"}` {
		t.Fatalf("serialized params: %s", p.Params)
	}
	if checkout.lastParams.Metadata["report_type"] != "zone_summary" {
		t.Fatalf("checkout metadata: %+v", checkout.lastParams.Metadata)
	}
}

func TestExpiredDownloadLink(t *testing.T) {
	store := memory.New()
	svc := New(store, &fakeCheckout{}, nil, Config{ReportLinkTTL: time.Hour}, nil)

	p, _, err := svc.StartReportPurchase(context.Background(), "compradora@example.com", "", nil)
	if err != nil {
		t.Fatalf("start purchase: %v", err)
	}
	if err := svc.HandleEvent(context.Background(), payments.Event{
		Type:      payments.EventCheckoutCompleted,
		SessionID: p.StripeSessionID,
	}); err != nil {
		t.Fatalf("complete purchase: %v", err)
	}

	// Force the expiry into the past.
	paid, err := store.GetReportPurchaseByToken(context.Background(), p.DownloadToken)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	paid.ExpiresAt = &past
	if _, err := store.UpdateReportPurchase(context.Background(), paid); err != nil {
		t.Fatalf("update purchase: %v", err)
	}

	if _, err := svc.ValidateDownload(context.Background(), p.DownloadToken); err == nil {
		t.Fatal("expired link should be rejected")
	}
}

func TestFormatAmount(t *testing.T) {
	if got := formatAmount(1250, "eur"); got != "12,50 €" {
		t.Fatalf("format: %s", got)
	}
	if got := formatAmount(100, "usd"); got != "1,00 USD" {
		t.Fatalf("format: %s", got)
	}
}
