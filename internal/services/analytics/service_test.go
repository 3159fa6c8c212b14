package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/storage/memory"
)

func seedItems(t *testing.T, store *memory.Store) {
	t.Helper()
	seed := []struct {
		title  string
		status inventory.Status
	}{
		{"Banc trencat", inventory.StatusApproved},
		{"Fanal apagat", inventory.StatusApproved},
		{"Paperera plena", inventory.StatusResolved},
		{"Pendent de revisar", inventory.StatusPending},
		{"Spam", inventory.StatusRejected},
	}
	for _, s := range seed {
		if _, err := store.CreateItem(context.Background(), inventory.Item{
			Title:     s.title,
			Latitude:  41.12,
			Longitude: 1.25,
			Status:    s.status,
		}); err != nil {
			t.Fatalf("create %s: %v", s.title, err)
		}
	}
}

func TestSummarize(t *testing.T) {
	store := memory.New()
	seedItems(t, store)

	svc := New(store, store, nil)
	sum, err := svc.Summarize(context.Background())
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Total != 5 {
		t.Fatalf("total: %d", sum.Total)
	}
	if sum.Pending != 1 || sum.Approved != 2 || sum.Resolved != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestExportCSVContainsOnlyMapItems(t *testing.T) {
	store := memory.New()
	seedItems(t, store)

	svc := New(store, store, nil)
	out, err := svc.ExportCSV(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	// Header plus the two approved and one resolved item.
	if len(records) != 4 {
		t.Fatalf("rows: %d", len(records))
	}
	if records[0][0] != "id" || records[0][2] != "status" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	for _, rec := range records[1:] {
		if rec[2] != string(inventory.StatusApproved) && rec[2] != string(inventory.StatusResolved) {
			t.Fatalf("hidden item exported: %v", rec)
		}
	}
}

func TestTrendsAndTopCategoriesDefaults(t *testing.T) {
	store := memory.New()
	seedItems(t, store)

	svc := New(store, store, nil)
	if _, err := svc.Trends(context.Background(), 0); err != nil {
		t.Fatalf("trends: %v", err)
	}
	if _, err := svc.TopCategories(context.Background(), 0); err != nil {
		t.Fatalf("top categories: %v", err)
	}
}
