package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civicmap/civicmap/internal/domain/initiative"
	"github.com/civicmap/civicmap/internal/storage"
)

const initiativeColumns = `id, title, slug, description, location, category, date, time_of_day,
	image_path, status, view_count, creator_id, created_at, updated_at`

func (s *Store) CreateInitiative(ctx context.Context, ini initiative.Initiative) (initiative.Initiative, error) {
	if ini.ID == "" {
		ini.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ini.CreatedAt = now
	ini.UpdatedAt = now

	_, err := s.exec(ctx, "initiative", ini.Slug, `
		INSERT INTO initiatives (id, title, slug, description, location, category, date, time_of_day,
			image_path, status, view_count, creator_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, ini.ID, ini.Title, ini.Slug, ini.Description, ini.Location, ini.Category, ini.Date, ini.TimeOfDay,
		ini.ImagePath, ini.Status, ini.ViewCount, ini.CreatorID, ini.CreatedAt, ini.UpdatedAt)
	if err != nil {
		return initiative.Initiative{}, err
	}
	return ini, nil
}

func (s *Store) UpdateInitiative(ctx context.Context, ini initiative.Initiative) (initiative.Initiative, error) {
	existing, err := s.GetInitiative(ctx, ini.ID)
	if err != nil {
		return initiative.Initiative{}, err
	}
	ini.CreatedAt = existing.CreatedAt
	ini.UpdatedAt = time.Now().UTC()

	res, err := s.exec(ctx, "initiative", ini.ID, `
		UPDATE initiatives
		SET title = $2, slug = $3, description = $4, location = $5, category = $6, date = $7,
			time_of_day = $8, image_path = $9, status = $10, creator_id = $11, updated_at = $12
		WHERE id = $1
	`, ini.ID, ini.Title, ini.Slug, ini.Description, ini.Location, ini.Category, ini.Date,
		ini.TimeOfDay, ini.ImagePath, ini.Status, ini.CreatorID, ini.UpdatedAt)
	if err != nil {
		return initiative.Initiative{}, err
	}
	if err := rowsAffected(res, "initiative", ini.ID); err != nil {
		return initiative.Initiative{}, err
	}
	return ini, nil
}

func (s *Store) GetInitiative(ctx context.Context, id string) (initiative.Initiative, error) {
	var ini initiative.Initiative
	err := s.db.GetContext(ctx, &ini, `SELECT `+initiativeColumns+` FROM initiatives WHERE id = $1`, id)
	if err != nil {
		return initiative.Initiative{}, mapErr(err, "initiative", id)
	}
	return ini, nil
}

func (s *Store) GetInitiativeBySlug(ctx context.Context, slug string) (initiative.Initiative, error) {
	var ini initiative.Initiative
	err := s.db.GetContext(ctx, &ini, `SELECT `+initiativeColumns+` FROM initiatives WHERE slug = $1`, slug)
	if err != nil {
		return initiative.Initiative{}, mapErr(err, "initiative", slug)
	}
	return ini, nil
}

func (s *Store) ListInitiatives(ctx context.Context, filter storage.InitiativeFilter) ([]initiative.Initiative, error) {
	query := `SELECT ` + initiativeColumns + ` FROM initiatives`
	var (
		clauses []string
		args    []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			placeholders = append(placeholders, arg(st))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Category != "" {
		clauses = append(clauses, "category = "+arg(filter.Category))
	}
	if filter.CreatorID != "" {
		clauses = append(clauses, "creator_id = "+arg(filter.CreatorID))
	}
	if filter.OnDate != nil {
		clauses = append(clauses, "date::date = "+arg(filter.OnDate.UTC().Format("2006-01-02")))
	}
	if filter.UpcomingFrom != nil {
		clauses = append(clauses, "date::date >= "+arg(filter.UpcomingFrom.UTC().Format("2006-01-02")))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date"

	var result []initiative.Initiative
	if err := s.db.SelectContext(ctx, &result, query, args...); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM initiatives WHERE slug = $1)`, slug)
	return exists, err
}

func (s *Store) IncrementInitiativeViews(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "initiative", id, `
		UPDATE initiatives SET view_count = view_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "initiative", id)
}

func (s *Store) AddParticipant(ctx context.Context, initiativeID, userID string) error {
	_, err := s.exec(ctx, "participant", userID, `
		INSERT INTO initiative_participants (initiative_id, user_id, created_at)
		VALUES ($1, $2, $3)
	`, initiativeID, userID, time.Now().UTC())
	return err
}

func (s *Store) RemoveParticipant(ctx context.Context, initiativeID, userID string) error {
	res, err := s.exec(ctx, "participant", userID, `
		DELETE FROM initiative_participants WHERE initiative_id = $1 AND user_id = $2
	`, initiativeID, userID)
	if err != nil {
		return err
	}
	return rowsAffected(res, "participant", userID)
}

func (s *Store) ListParticipantIDs(ctx context.Context, initiativeID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT user_id FROM initiative_participants WHERE initiative_id = $1 ORDER BY user_id
	`, initiativeID)
	return ids, err
}

func (s *Store) CreateParticipation(ctx context.Context, p initiative.Participation) (initiative.Participation, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, "participation", p.ID, `
		INSERT INTO initiative_participations (id, initiative_id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.InitiativeID, p.Name, toNullString(p.Email), toNullString(p.Phone), p.CreatedAt)
	if err != nil {
		return initiative.Participation{}, err
	}
	return p, nil
}

func (s *Store) ListParticipations(ctx context.Context, initiativeID string) ([]initiative.Participation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, initiative_id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at
		FROM initiative_participations
		WHERE initiative_id = $1
		ORDER BY created_at
	`, initiativeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []initiative.Participation
	for rows.Next() {
		var p initiative.Participation
		if err := rows.Scan(&p.ID, &p.InitiativeID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) CreateComment(ctx context.Context, c initiative.Comment) (initiative.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, "comment", c.ID, `
		INSERT INTO initiative_comments (id, initiative_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.InitiativeID, c.UserID, c.Content, c.CreatedAt)
	if err != nil {
		return initiative.Comment{}, err
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, initiativeID string) ([]initiative.Comment, error) {
	var result []initiative.Comment
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, initiative_id, user_id, content, created_at
		FROM initiative_comments
		WHERE initiative_id = $1
		ORDER BY created_at
	`, initiativeID)
	return result, err
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "comment", id, `DELETE FROM initiative_comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "comment", id)
}
