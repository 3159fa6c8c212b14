package containers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/civicmap/civicmap/internal/domain/container"
	"github.com/civicmap/civicmap/internal/domain/geo"
	"github.com/civicmap/civicmap/internal/services/sections"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/internal/storage/memory"
)

var cityBounds = sections.Bounds{MinLat: 40.5, MaxLat: 41.5, MinLng: 0.5, MaxLng: 2.0}

func newTestService(t *testing.T, store *memory.Store, threshold int) *Service {
	t.Helper()
	return New(store, sections.New(store, cityBounds, nil), threshold, nil)
}

func place(t *testing.T, svc *Service) container.Point {
	t.Helper()
	p, err := svc.Create(context.Background(), PointInput{
		Latitude:  41.12,
		Longitude: 1.25,
		Address:   "Rambla Nova, 10",
	})
	if err != nil {
		t.Fatalf("create point: %v", err)
	}
	return p
}

func TestCreatePoint(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)

	p := place(t, svc)
	if p.Status != container.StatusNormal {
		t.Fatalf("new point should be normal, is %s", p.Status)
	}
	if !strings.HasPrefix(p.Polygon, "POLYGON((") {
		t.Fatalf("polygon not built: %s", p.Polygon)
	}

	points, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("points: %d", len(points))
	}
}

func TestCreatePointOutsideBoundary(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)
	_, err := svc.Create(context.Background(), PointInput{Latitude: 48.85, Longitude: 2.35})
	if err == nil {
		t.Fatal("expected rejection outside the city boundary")
	}
}

func TestCreatePointAssignsSection(t *testing.T) {
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
	p := place(t, svc)
	if p.SectionID == nil || *p.SectionID != sec.ID {
		t.Fatalf("section not assigned: %+v", p.SectionID)
	}
}

func TestOverflowReportsFlipAtThreshold(t *testing.T) {
	svc := newTestService(t, memory.New(), 2)
	p := place(t, svc)

	updated, err := svc.ReportOverflow(context.Background(), p.ID, "user-1")
	if err != nil {
		t.Fatalf("first overflow report: %v", err)
	}
	if updated.Status != container.StatusNormal || updated.OverflowReports != 1 {
		t.Fatalf("point flipped below threshold: %+v", updated)
	}
	if updated.LastOverflowAt == nil {
		t.Fatal("last overflow time not recorded")
	}

	// One report per resident.
	_, err = svc.ReportOverflow(context.Background(), p.ID, "user-1")
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("double report should conflict, got %v", err)
	}

	updated, err = svc.ReportOverflow(context.Background(), p.ID, "user-2")
	if err != nil {
		t.Fatalf("second overflow report: %v", err)
	}
	if updated.Status != container.StatusOverflow {
		t.Fatalf("point not flipped at threshold: %s", updated.Status)
	}
}

func TestSetStatusResetsCounter(t *testing.T) {
	svc := newTestService(t, memory.New(), 1)
	p := place(t, svc)

	flipped, err := svc.ReportOverflow(context.Background(), p.ID, "user-1")
	if err != nil {
		t.Fatalf("overflow report: %v", err)
	}
	if flipped.Status != container.StatusOverflow {
		t.Fatalf("threshold of one should flip immediately: %s", flipped.Status)
	}

	cleared, err := svc.SetStatus(context.Background(), p.ID, container.StatusNormal)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if cleared.Status != container.StatusNormal || cleared.OverflowReports != 0 {
		t.Fatalf("counter not cleared: %+v", cleared)
	}

	if _, err := svc.SetStatus(context.Background(), p.ID, "desbordat"); err == nil {
		t.Fatal("unknown status should be rejected")
	}
}

func TestSuggestions(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)

	sg, err := svc.Suggest(context.Background(), SuggestionInput{
		Latitude:    41.12,
		Longitude:   1.25,
		Notes:       "Falta un contenidor de vidre",
		SuggestedBy: "user-1",
	})
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if sg.SuggestedBy != "user-1" {
		t.Fatalf("suggestion author: %s", sg.SuggestedBy)
	}

	if _, err := svc.Suggest(context.Background(), SuggestionInput{
		Latitude:    48.85,
		Longitude:   2.35,
		SuggestedBy: "user-1",
	}); err == nil {
		t.Fatal("suggestion outside the boundary should fail")
	}

	list, err := svc.Suggestions(context.Background())
	if err != nil {
		t.Fatalf("list suggestions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("suggestions: %d", len(list))
	}
}

func TestDeletePoint(t *testing.T) {
	svc := newTestService(t, memory.New(), 3)
	p := place(t, svc)

	if err := svc.Delete(context.Background(), p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), p.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
