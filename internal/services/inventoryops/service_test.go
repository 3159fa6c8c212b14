package inventoryops

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/civicmap/civicmap/internal/domain/geo"
	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/mailer"
	"github.com/civicmap/civicmap/internal/services/sections"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/internal/storage/memory"
)

var cityBounds = sections.Bounds{MinLat: 40.5, MaxLat: 41.5, MinLng: 0.5, MaxLng: 2.0}

type captureProvider struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (c *captureProvider) Send(_ context.Context, _ string, msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *captureProvider) sent() []mailer.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]mailer.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func newTestService(t *testing.T, store *memory.Store, threshold int) *Service {
	t.Helper()
	return New(store, store, sections.New(store, cityBounds, nil), nil, threshold, nil)
}

func newMailService(t *testing.T, store *memory.Store, provider *captureProvider) *Service {
	t.Helper()
	mail := mailer.New(provider, nil, "CivicMap <hola@civicmap.test>", "admin@civicmap.test", nil)
	return New(store, store, sections.New(store, cityBounds, nil), mail, 3, nil)
}

func report(t *testing.T, svc *Service, title string) inventory.Item {
	t.Helper()
	item, err := svc.Report(context.Background(), ReportInput{
		Title:     title,
		Latitude:  41.12,
		Longitude: 1.25,
	})
	if err != nil {
		t.Fatalf("report %s: %v", title, err)
	}
	return item
}

func TestReportAndModerate(t *testing.T) {
	store := memory.New()
	svc := newTestService(t, store, 3)

	item := report(t, svc, "Banc trencat")
	if item.Status != inventory.StatusPending {
		t.Fatalf("new item should be pending, is %s", item.Status)
	}

	pending, err := svc.ListPending(context.Background(), "")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending item, got %d", len(pending))
	}

	// Pending items stay off the public map.
	result, err := svc.MapItems(context.Background(), "", "")
	if err != nil {
		t.Fatalf("map items: %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("pending item leaked onto the map")
	}

	approved, err := svc.Approve(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != inventory.StatusApproved || approved.ApprovedAt == nil {
		t.Fatalf("approval not recorded: %+v", approved)
	}

	result, err = svc.MapItems(context.Background(), "", "")
	if err != nil {
		t.Fatalf("map items: %v", err)
	}
	if len(result.Items) != 1 || result.Total != 1 {
		t.Fatalf("approved item missing from the map")
	}

	if _, err := svc.Approve(context.Background(), item.ID); err == nil {
		t.Fatal("approving twice should fail")
	}

	resolved, err := svc.Resolve(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != inventory.StatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("resolution not recorded: %+v", resolved)
	}

	// Resolved items remain on the map.
	result, err = svc.MapItems(context.Background(), "", "")
	if err != nil {
		t.Fatalf("map items: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("resolved item should stay on the map")
	}
}

func TestReportRejectsOutsideBoundary(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)
	_, err := svc.Report(context.Background(), ReportInput{
		Title:     "Fora de la ciutat",
		Latitude:  48.85,
		Longitude: 2.35,
	})
	if err == nil {
		t.Fatal("expected rejection outside the city boundary")
	}
}

func TestReportValidation(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)
	if _, err := svc.Report(context.Background(), ReportInput{Title: "  ", Latitude: 41, Longitude: 1}); err == nil {
		t.Fatal("expected error for empty title")
	}
	if _, err := svc.Report(context.Background(), ReportInput{Title: "x", Latitude: 91, Longitude: 1}); err == nil {
		t.Fatal("expected error for out of range latitude")
	}
}

func TestRejectOnlyPending(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)
	item := report(t, svc, "Paperera plena")

	if _, err := svc.Approve(context.Background(), item.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Reject(context.Background(), item.ID, ""); err == nil {
		t.Fatal("rejecting an approved item should fail")
	}
	if _, err := svc.Resolve(context.Background(), item.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.Resolve(context.Background(), item.ID); err == nil {
		t.Fatal("resolving twice should fail")
	}
}

func TestVoteImportance(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)
	item := report(t, svc, "Fanal apagat")

	// Votes require an approved item.
	if _, err := svc.VoteImportance(context.Background(), item.ID, "user-1"); err == nil {
		t.Fatal("voting on a pending item should fail")
	}
	if _, err := svc.Approve(context.Background(), item.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	updated, err := svc.VoteImportance(context.Background(), item.ID, "user-1")
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if updated.ImportanceCount != 1 {
		t.Fatalf("importance count: %d", updated.ImportanceCount)
	}

	_, err = svc.VoteImportance(context.Background(), item.ID, "user-1")
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("double vote should conflict, got %v", err)
	}

	updated, err = svc.VoteImportance(context.Background(), item.ID, "user-2")
	if err != nil {
		t.Fatalf("second user vote: %v", err)
	}
	if updated.ImportanceCount != 2 {
		t.Fatalf("importance count: %d", updated.ImportanceCount)
	}
}

func TestResolvedReportWithdrawsImportanceVote(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)
	item := report(t, svc, "Vorera aixecada")
	if _, err := svc.Approve(context.Background(), item.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := svc.VoteImportance(context.Background(), item.ID, "user-1"); err != nil {
		t.Fatalf("vote: %v", err)
	}

	updated, err := svc.ReportResolved(context.Background(), item.ID, "user-1")
	if err != nil {
		t.Fatalf("report resolved: %v", err)
	}
	if updated.ResolvedCount != 1 {
		t.Fatalf("resolved count: %d", updated.ResolvedCount)
	}
	if updated.ImportanceCount != 0 {
		t.Fatalf("importance vote not withdrawn: %d", updated.ImportanceCount)
	}
}

func TestAutoResolveAtThreshold(t *testing.T) {
	svc := newTestService(t, memory.New(), 2)
	item := report(t, svc, "Font espatllada")
	if _, err := svc.Approve(context.Background(), item.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	updated, err := svc.ReportResolved(context.Background(), item.ID, "user-1")
	if err != nil {
		t.Fatalf("first resolved report: %v", err)
	}
	if updated.Status != inventory.StatusApproved {
		t.Fatalf("item resolved below threshold: %s", updated.Status)
	}

	updated, err = svc.ReportResolved(context.Background(), item.ID, "user-2")
	if err != nil {
		t.Fatalf("second resolved report: %v", err)
	}
	if updated.Status != inventory.StatusResolved {
		t.Fatalf("item not auto-resolved at threshold: %s", updated.Status)
	}
}

func TestSectionAssignmentOnReport(t *testing.T) {
	store := memory.New()
	d, err := store.UpsertDistrict(context.Background(), geo.District{Code: "01"})
	if err != nil {
		t.Fatalf("upsert district: %v", err)
	}
	sec, err := store.UpsertSection(context.Background(), geo.Section{
		DistrictID:   d.ID,
		DistrictCode: "01",
		Code:         "001",
		Geometry:     "POLYGON((1.2 41.1, 1.3 41.1, 1.3 41.2, 1.2 41.2, 1.2 41.1))",
	})
	if err != nil {
		t.Fatalf("upsert section: %v", err)
	}

	svc := newTestService(t, store, 3)
	item := report(t, svc, "Senyal caigut")
	if item.SectionID == nil || *item.SectionID != sec.ID {
		t.Fatalf("section not assigned: %+v", item.SectionID)
	}

	a, err := store.GetAssignment(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if a.Method != geo.MethodInProcess {
		t.Fatalf("unexpected method: %s", a.Method)
	}
}

func TestCategoriesOnReport(t *testing.T) {
	store := memory.New()
	svc := newTestService(t, store, 3)

	err := svc.SeedCategories(context.Background(), []inventory.Category{
		{Code: "mobiliari", Name: "Mobiliari urbà", Active: true},
		{Code: "arxivat", Name: "Arxivat", Active: false},
	}, map[string][]inventory.Category{
		"mobiliari": {{Code: "mobiliari-bancs", Name: "Bancs", Active: true}},
	})
	if err != nil {
		t.Fatalf("seed categories: %v", err)
	}

	item, err := svc.Report(context.Background(), ReportInput{
		Title:         "Banc trencat",
		Latitude:      41.12,
		Longitude:     1.25,
		CategoryCodes: []string{"mobiliari-bancs"},
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(item.Categories) != 1 || item.Categories[0].Code != "mobiliari-bancs" {
		t.Fatalf("categories not attached: %+v", item.Categories)
	}

	sub, err := store.GetCategoryByCode(context.Background(), "mobiliari-bancs")
	if err != nil {
		t.Fatalf("get subcategory: %v", err)
	}
	if sub.ParentID == nil {
		t.Fatal("subcategory missing parent")
	}

	if _, err := svc.Report(context.Background(), ReportInput{
		Title:         "No hauria de passar",
		Latitude:      41.12,
		Longitude:     1.25,
		CategoryCodes: []string{"arxivat"},
	}); err == nil {
		t.Fatal("inactive category should be rejected")
	}
}

func TestMapFiltersAndCounts(t *testing.T) {
	store := memory.New()
	svc := newTestService(t, store, 3)

	err := svc.SeedCategories(context.Background(), []inventory.Category{
		{Code: "mobiliari", Name: "Mobiliari urbà", Active: true},
		{Code: "neteja", Name: "Neteja", Active: true},
	}, map[string][]inventory.Category{
		"mobiliari": {{Code: "mobiliari-bancs", Name: "Bancs", Active: true}},
	})
	if err != nil {
		t.Fatalf("seed categories: %v", err)
	}

	reportWith := func(title string, codes []string) {
		item, err := svc.Report(context.Background(), ReportInput{
			Title:         title,
			Latitude:      41.12,
			Longitude:     1.25,
			CategoryCodes: codes,
		})
		if err != nil {
			t.Fatalf("report %s: %v", title, err)
		}
		if _, err := svc.Approve(context.Background(), item.ID); err != nil {
			t.Fatalf("approve %s: %v", title, err)
		}
	}
	reportWith("Banc trencat", []string{"mobiliari", "mobiliari-bancs"})
	reportWith("Paperera solta", []string{"mobiliari"})
	reportWith("Brutícia", []string{"neteja"})

	all, err := svc.MapItems(context.Background(), "", "")
	if err != nil {
		t.Fatalf("map items: %v", err)
	}
	if all.Total != 3 || len(all.Items) != 3 {
		t.Fatalf("expected 3 visible items, got total=%d items=%d", all.Total, len(all.Items))
	}
	if all.ByCategory["mobiliari"] != 2 || all.ByCategory["neteja"] != 1 {
		t.Fatalf("category counts: %v", all.ByCategory)
	}
	// Subcategory counts only appear once a category is selected.
	if len(all.BySubcategory) != 0 {
		t.Fatalf("unexpected subcategory counts: %v", all.BySubcategory)
	}

	filtered, err := svc.MapItems(context.Background(), "mobiliari", "")
	if err != nil {
		t.Fatalf("map items filtered: %v", err)
	}
	if len(filtered.Items) != 2 {
		t.Fatalf("category filter: %d items", len(filtered.Items))
	}
	if filtered.Total != 3 {
		t.Fatalf("totals should cover all visible items, got %d", filtered.Total)
	}
	if filtered.BySubcategory["mobiliari-bancs"] != 1 {
		t.Fatalf("subcategory counts: %v", filtered.BySubcategory)
	}

	narrowed, err := svc.MapItems(context.Background(), "mobiliari", "mobiliari-bancs")
	if err != nil {
		t.Fatalf("map items narrowed: %v", err)
	}
	if len(narrowed.Items) != 1 || narrowed.Items[0].Title != "Banc trencat" {
		t.Fatalf("subcategory filter: %+v", narrowed.Items)
	}
}

func TestModerationEmailsReporter(t *testing.T) {
	store := memory.New()
	provider := &captureProvider{}
	svc := newMailService(t, store, provider)

	reporter, err := store.CreateUser(context.Background(), user.User{
		Email:    "veina@civicmap.test",
		Username: "veina",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	item, err := svc.Report(context.Background(), ReportInput{
		Title:      "Banc trencat",
		Latitude:   41.12,
		Longitude:  1.25,
		ReporterID: reporter.ID,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	before := len(provider.sent())
	if _, err := svc.Approve(context.Background(), item.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	msgs := provider.sent()
	if len(msgs) != before+1 {
		t.Fatalf("expected one approval email, got %d new", len(msgs)-before)
	}
	last := msgs[len(msgs)-1]
	if len(last.To) != 1 || last.To[0] != "veina@civicmap.test" {
		t.Fatalf("approval email recipient: %v", last.To)
	}

	if _, err := svc.Resolve(context.Background(), item.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	msgs = provider.sent()
	last = msgs[len(msgs)-1]
	if len(last.To) != 1 || last.To[0] != "veina@civicmap.test" {
		t.Fatalf("resolution email recipient: %v", last.To)
	}
}

func TestRejectEmailsReporterWithReason(t *testing.T) {
	store := memory.New()
	provider := &captureProvider{}
	svc := newMailService(t, store, provider)

	reporter, err := store.CreateUser(context.Background(), user.User{
		Email:    "veina@civicmap.test",
		Username: "veina",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	item, err := svc.Report(context.Background(), ReportInput{
		Title:      "Duplicada",
		Latitude:   41.12,
		Longitude:  1.25,
		ReporterID: reporter.ID,
	})
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if _, err := svc.Reject(context.Background(), item.ID, "Ja està registrada"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	msgs := provider.sent()
	last := msgs[len(msgs)-1]
	if len(last.To) != 1 || last.To[0] != "veina@civicmap.test" {
		t.Fatalf("rejection email recipient: %v", last.To)
	}
	if !strings.Contains(last.HTML, "Ja està registrada") {
		t.Fatalf("rejection email missing reason: %s", last.HTML)
	}
}

func TestAnonymousReportSkipsReporterEmail(t *testing.T) {
	store := memory.New()
	provider := &captureProvider{}
	svc := newMailService(t, store, provider)

	item := report(t, svc, "Sense sessió")
	before := len(provider.sent())
	if _, err := svc.Approve(context.Background(), item.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := len(provider.sent()); got != before {
		t.Fatalf("anonymous report triggered %d reporter emails", got-before)
	}
}

func TestShareCountsOnlyPublicItems(t *testing.T) {
	store := memory.New()
	svc := newTestService(t, store, 3)

	item := report(t, svc, "Paperera plena")
	if _, err := svc.Share(context.Background(), item.ID); err == nil {
		t.Fatal("pending item accepted a share")
	}

	if _, err := svc.Approve(context.Background(), item.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	shared, err := svc.Share(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if shared.ShareCount != 1 {
		t.Fatalf("share count: %d", shared.ShareCount)
	}
	shared, err = svc.Share(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("second share: %v", err)
	}
	if shared.ShareCount != 2 {
		t.Fatalf("share count after second share: %d", shared.ShareCount)
	}
}
