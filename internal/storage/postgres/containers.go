package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/civicmap/civicmap/internal/domain/container"
)

const containerColumns = `id, latitude, longitude, polygon, status,
	COALESCE(address, '') AS address, COALESCE(notes, '') AS notes, section_id, created_by,
	overflow_reports, last_overflow_at, created_at, updated_at`

func (s *Store) CreateContainerPoint(ctx context.Context, p container.Point) (container.Point, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.exec(ctx, "container point", p.ID, `
		INSERT INTO container_points (id, latitude, longitude, polygon, status, address, notes,
			section_id, created_by, overflow_reports, last_overflow_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.Latitude, p.Longitude, p.Polygon, p.Status, toNullString(p.Address),
		toNullString(p.Notes), p.SectionID, p.CreatedBy, p.OverflowReports,
		toNullTime(p.LastOverflowAt), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return container.Point{}, err
	}
	return p, nil
}

func (s *Store) UpdateContainerPoint(ctx context.Context, p container.Point) (container.Point, error) {
	existing, err := s.GetContainerPoint(ctx, p.ID)
	if err != nil {
		return container.Point{}, err
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	res, err := s.exec(ctx, "container point", p.ID, `
		UPDATE container_points
		SET latitude = $2, longitude = $3, polygon = $4, status = $5, address = $6, notes = $7,
			section_id = $8, overflow_reports = $9, last_overflow_at = $10, updated_at = $11
		WHERE id = $1
	`, p.ID, p.Latitude, p.Longitude, p.Polygon, p.Status, toNullString(p.Address),
		toNullString(p.Notes), p.SectionID, p.OverflowReports,
		toNullTime(p.LastOverflowAt), p.UpdatedAt)
	if err != nil {
		return container.Point{}, err
	}
	if err := rowsAffected(res, "container point", p.ID); err != nil {
		return container.Point{}, err
	}
	return p, nil
}

func (s *Store) GetContainerPoint(ctx context.Context, id string) (container.Point, error) {
	var p container.Point
	err := s.db.GetContext(ctx, &p, `SELECT `+containerColumns+` FROM container_points WHERE id = $1`, id)
	if err != nil {
		return container.Point{}, mapErr(err, "container point", id)
	}
	return p, nil
}

func (s *Store) ListContainerPoints(ctx context.Context) ([]container.Point, error) {
	var result []container.Point
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+containerColumns+` FROM container_points ORDER BY created_at, id
	`)
	return result, err
}

func (s *Store) DeleteContainerPoint(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "container point", id, `DELETE FROM container_points WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "container point", id)
}

func (s *Store) CreateOverflowReport(ctx context.Context, pointID, userID string) error {
	_, err := s.exec(ctx, "overflow report", pointID, `
		INSERT INTO container_overflow_reports (point_id, user_id, created_at)
		VALUES ($1, $2, $3)
	`, pointID, userID, time.Now().UTC())
	return err
}

func (s *Store) CreateContainerSuggestion(ctx context.Context, sg container.Suggestion) (container.Suggestion, error) {
	if sg.ID == "" {
		sg.ID = uuid.NewString()
	}
	sg.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, "container suggestion", sg.ID, `
		INSERT INTO container_suggestions (id, latitude, longitude, address, notes, section_id,
			suggested_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sg.ID, sg.Latitude, sg.Longitude, toNullString(sg.Address), toNullString(sg.Notes),
		sg.SectionID, sg.SuggestedBy, sg.CreatedAt)
	if err != nil {
		return container.Suggestion{}, err
	}
	return sg, nil
}

func (s *Store) ListContainerSuggestions(ctx context.Context) ([]container.Suggestion, error) {
	var result []container.Suggestion
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, latitude, longitude, COALESCE(address, '') AS address, COALESCE(notes, '') AS notes,
			section_id, suggested_by, created_at
		FROM container_suggestions ORDER BY created_at, id
	`)
	return result, err
}
