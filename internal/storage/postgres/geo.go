package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicmap/civicmap/internal/domain/geo"
	"github.com/civicmap/civicmap/internal/storage"
)

// postgisState caches whether the PostGIS extension answered a spatial query
// on this store's database. Once a query fails with an undefined function
// error the store stops retrying and reports ErrUnsupported.
type postgisState struct {
	mu          sync.Mutex
	unavailable bool
}

func (s *Store) UpsertDistrict(ctx context.Context, d geo.District) (geo.District, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO districts (id, code, name, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, created_at
	`, d.ID, d.Code, d.Name, d.CreatedAt)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return geo.District{}, mapErr(err, "district", d.Code)
	}
	return d, nil
}

func (s *Store) UpsertSection(ctx context.Context, sec geo.Section) (geo.Section, error) {
	if sec.ID == "" {
		sec.ID = uuid.NewString()
	}
	sec.CreatedAt = time.Now().UTC()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sections (id, district_id, district_code, code, name, geometry, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (district_code, code) DO UPDATE
		SET district_id = EXCLUDED.district_id, name = EXCLUDED.name, geometry = EXCLUDED.geometry
		RETURNING id, created_at
	`, sec.ID, sec.DistrictID, sec.DistrictCode, sec.Code, sec.Name, sec.Geometry, sec.CreatedAt)
	if err := row.Scan(&sec.ID, &sec.CreatedAt); err != nil {
		return geo.Section{}, mapErr(err, "section", sec.DistrictCode+"-"+sec.Code)
	}
	return sec, nil
}

const sectionColumns = `id, district_id, district_code, code, name, geometry, created_at`

func (s *Store) GetSection(ctx context.Context, id string) (geo.Section, error) {
	var sec geo.Section
	err := s.db.GetContext(ctx, &sec, `SELECT `+sectionColumns+` FROM sections WHERE id = $1`, id)
	if err != nil {
		return geo.Section{}, mapErr(err, "section", id)
	}
	return sec, nil
}

func (s *Store) ListDistricts(ctx context.Context) ([]geo.District, error) {
	var result []geo.District
	err := s.db.SelectContext(ctx, &result, `SELECT id, code, name, created_at FROM districts ORDER BY code`)
	return result, err
}

func (s *Store) ListSections(ctx context.Context) ([]geo.Section, error) {
	var result []geo.Section
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+sectionColumns+` FROM sections ORDER BY district_code, code
	`)
	return result, err
}

// FindSectionContaining runs ST_Contains over the stored WKT geometries.
// When PostGIS is not installed the first failure flips a flag and further
// calls short-circuit to ErrUnsupported.
func (s *Store) FindSectionContaining(ctx context.Context, lat, lng float64) (geo.Section, error) {
	s.postgis.mu.Lock()
	unavailable := s.postgis.unavailable
	s.postgis.mu.Unlock()
	if unavailable {
		return geo.Section{}, storage.ErrUnsupported
	}

	var sec geo.Section
	err := s.db.GetContext(ctx, &sec, `
		SELECT `+sectionColumns+`
		FROM sections
		WHERE ST_Contains(ST_GeomFromText(geometry, 4326), ST_SetSRID(ST_MakePoint($1, $2), 4326))
		LIMIT 1
	`, lng, lat)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return geo.Section{}, fmt.Errorf("section at (%f, %f): %w", lat, lng, storage.ErrNotFound)
		}
		if isUndefinedFunction(err) {
			s.postgis.mu.Lock()
			s.postgis.unavailable = true
			s.postgis.mu.Unlock()
			return geo.Section{}, storage.ErrUnsupported
		}
		return geo.Section{}, err
	}
	return sec, nil
}

// isUndefinedFunction matches the error PostgreSQL raises when ST_Contains
// does not exist (SQLSTATE 42883).
func isUndefinedFunction(err error) bool {
	return strings.Contains(err.Error(), "42883") ||
		strings.Contains(err.Error(), "function st_contains") ||
		strings.Contains(err.Error(), "does not exist")
}

func (s *Store) RecordAssignment(ctx context.Context, a geo.Assignment) error {
	a.AssignedAt = time.Now().UTC()
	_, err := s.exec(ctx, "assignment", a.ItemID, `
		INSERT INTO section_assignments (item_id, section_id, method, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id) DO UPDATE
		SET section_id = EXCLUDED.section_id, method = EXCLUDED.method, assigned_at = EXCLUDED.assigned_at
	`, a.ItemID, a.SectionID, a.Method, a.AssignedAt)
	return err
}

func (s *Store) GetAssignment(ctx context.Context, itemID string) (geo.Assignment, error) {
	var a geo.Assignment
	err := s.db.GetContext(ctx, &a, `
		SELECT item_id, section_id, method, assigned_at FROM section_assignments WHERE item_id = $1
	`, itemID)
	if err != nil {
		return geo.Assignment{}, mapErr(err, "assignment", itemID)
	}
	return a, nil
}
