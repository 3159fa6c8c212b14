// Package analytics aggregates inventory data for dashboards and the paid
// report export.
package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Service answers aggregate queries.
type Service struct {
	store storage.AnalyticsStore
	items storage.InventoryStore
	log   *logger.Logger
}

// New constructs an analytics service.
func New(store storage.AnalyticsStore, items storage.InventoryStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("analytics")
	}
	return &Service{store: store, items: items, log: log}
}

// ByZone returns item counts per census section, busiest first.
func (s *Service) ByZone(ctx context.Context) ([]storage.ZoneCount, error) {
	return s.store.CountItemsByZone(ctx)
}

// TopCategories returns the most reported categories.
func (s *Service) TopCategories(ctx context.Context, limit int) ([]storage.CategoryCount, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.CountItemsByCategory(ctx, limit)
}

// Trends returns monthly report counts over the given window.
func (s *Service) Trends(ctx context.Context, months int) ([]storage.MonthCount, error) {
	if months <= 0 {
		months = 12
	}
	return s.store.CountItemsByMonth(ctx, months)
}

// Summary is the dashboard headline block.
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Resolved int `json:"resolved"`
}

// Summarize counts items by lifecycle state.
func (s *Service) Summarize(ctx context.Context) (Summary, error) {
	counts, err := s.store.CountItemsByStatus(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Pending:  counts[inventory.StatusPending],
		Approved: counts[inventory.StatusApproved],
		Resolved: counts[inventory.StatusResolved],
	}
	for _, n := range counts {
		sum.Total += n
	}
	return sum, nil
}

// ExportCSV writes every map-visible item as CSV, the payload behind the
// paid report download.
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	items, err := s.items.ListItems(ctx, storage.ItemFilter{
		Statuses: []inventory.Status{inventory.StatusApproved, inventory.StatusResolved},
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"id", "title", "status", "latitude", "longitude", "section_id",
		"importance_count", "resolved_count", "categories", "created_at", "resolved_at"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, it := range items {
		cats, err := s.items.ListItemCategories(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		catCodes := ""
		for i, c := range cats {
			if i > 0 {
				catCodes += ";"
			}
			catCodes += c.Code
		}
		sectionID := ""
		if it.SectionID != nil {
			sectionID = *it.SectionID
		}
		resolvedAt := ""
		if it.ResolvedAt != nil {
			resolvedAt = it.ResolvedAt.Format("2006-01-02")
		}
		record := []string{
			it.ID,
			it.Title,
			string(it.Status),
			strconv.FormatFloat(it.Latitude, 'f', 6, 64),
			strconv.FormatFloat(it.Longitude, 'f', 6, 64),
			sectionID,
			strconv.Itoa(it.ImportanceCount),
			strconv.Itoa(it.ResolvedCount),
			catCodes,
			it.CreatedAt.Format("2006-01-02"),
			resolvedAt,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	s.log.WithField("rows", len(items)).Info("csv export generated")
	return buf.Bytes(), nil
}
