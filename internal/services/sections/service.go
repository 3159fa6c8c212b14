// Package sections assigns coordinates to census sections. Lookups try the
// database's spatial query first and fall back to evaluating the stored WKT
// geometries in process.
package sections

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/civicmap/civicmap/internal/domain/geo"
	"github.com/civicmap/civicmap/internal/geom"
	"github.com/civicmap/civicmap/internal/storage"
	"github.com/civicmap/civicmap/pkg/logger"
)

// Bounds is a latitude/longitude bounding box used when no boundary has been
// imported yet.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether the coordinate falls inside the box.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Match is the result of a successful section lookup.
type Match struct {
	Section geo.Section
	Method  string
}

// Service answers section lookups and caches parsed geometries.
type Service struct {
	store    storage.GeoStore
	fallback Bounds
	log      *logger.Logger

	mu    sync.RWMutex
	cache map[string]geom.MultiPolygon // section ID -> parsed geometry
}

// New constructs a section service.
func New(store storage.GeoStore, fallback Bounds, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("sections")
	}
	return &Service{store: store, fallback: fallback, log: log}
}

// Locate finds the section containing the coordinate. It returns
// storage.ErrNotFound when no section matches.
func (s *Service) Locate(ctx context.Context, lat, lng float64) (Match, error) {
	sec, err := s.store.FindSectionContaining(ctx, lat, lng)
	if err == nil {
		return Match{Section: sec, Method: geo.MethodPostGIS}, nil
	}
	if !errors.Is(err, storage.ErrUnsupported) {
		if errors.Is(err, storage.ErrNotFound) {
			return Match{}, err
		}
		s.log.WithError(err).Warn("spatial query failed, falling back to in-process lookup")
	}
	return s.locateInProcess(ctx, lat, lng)
}

func (s *Service) locateInProcess(ctx context.Context, lat, lng float64) (Match, error) {
	sectionList, err := s.store.ListSections(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("list sections: %w", err)
	}

	point := geom.Point{X: lng, Y: lat}
	for _, sec := range sectionList {
		mp, err := s.geometry(sec)
		if err != nil {
			s.log.WithError(err).WithField("section_id", sec.ID).Warn("skipping unparseable geometry")
			continue
		}
		if mp.Contains(point) {
			return Match{Section: sec, Method: geo.MethodInProcess}, nil
		}
	}
	return Match{}, fmt.Errorf("section at (%f, %f): %w", lat, lng, storage.ErrNotFound)
}

// geometry returns the parsed polygon for a section, caching by ID.
func (s *Service) geometry(sec geo.Section) (geom.MultiPolygon, error) {
	s.mu.RLock()
	mp, ok := s.cache[sec.ID]
	s.mu.RUnlock()
	if ok {
		return mp, nil
	}

	mp, err := geom.ParseWKT(sec.Geometry)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.cache == nil {
		s.cache = make(map[string]geom.MultiPolygon)
	}
	s.cache[sec.ID] = mp
	s.mu.Unlock()
	return mp, nil
}

// InvalidateCache drops cached geometries, used after imports.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// WithinBoundary reports whether the coordinate lies inside the city. When
// sections have been imported the union of their geometries is the boundary;
// before any import the configured bounding box is used instead.
func (s *Service) WithinBoundary(ctx context.Context, lat, lng float64) (bool, error) {
	sectionList, err := s.store.ListSections(ctx)
	if err != nil {
		return false, fmt.Errorf("list sections: %w", err)
	}
	if len(sectionList) == 0 {
		return s.fallback.Contains(lat, lng), nil
	}

	_, err = s.Locate(ctx, lat, lng)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Assign records the section assignment for an inventory item.
func (s *Service) Assign(ctx context.Context, itemID string, match Match) error {
	return s.store.RecordAssignment(ctx, geo.Assignment{
		ItemID:    itemID,
		SectionID: match.Section.ID,
		Method:    match.Method,
	})
}

// ListDistricts returns all districts.
func (s *Service) ListDistricts(ctx context.Context) ([]geo.District, error) {
	return s.store.ListDistricts(ctx)
}

// ListSections returns all sections.
func (s *Service) ListSections(ctx context.Context) ([]geo.Section, error) {
	return s.store.ListSections(ctx)
}
