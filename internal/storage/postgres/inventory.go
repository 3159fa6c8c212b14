package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/storage"
)

const itemColumns = `id, title, description, latitude, longitude, status, image_path,
	location_source, photo_latitude, photo_longitude, importance_count, resolved_count,
	share_count, section_id, reporter_id, approved_at, resolved_at, created_at, updated_at`

func (s *Store) CreateItem(ctx context.Context, it inventory.Item) (inventory.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	it.CreatedAt = now
	it.UpdatedAt = now

	_, err := s.exec(ctx, "item", it.ID, `
		INSERT INTO inventory_items (id, title, description, latitude, longitude, status, image_path,
			location_source, photo_latitude, photo_longitude, importance_count, resolved_count,
			share_count, section_id, reporter_id, approved_at, resolved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, it.ID, it.Title, it.Description, it.Latitude, it.Longitude, it.Status, it.ImagePath,
		it.LocationSource, it.PhotoLatitude, it.PhotoLongitude, it.ImportanceCount, it.ResolvedCount,
		it.ShareCount, it.SectionID, it.ReporterID, toNullTime(it.ApprovedAt), toNullTime(it.ResolvedAt), it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return inventory.Item{}, err
	}
	return it, nil
}

func (s *Store) UpdateItem(ctx context.Context, it inventory.Item) (inventory.Item, error) {
	existing, err := s.GetItem(ctx, it.ID)
	if err != nil {
		return inventory.Item{}, err
	}
	it.CreatedAt = existing.CreatedAt
	it.UpdatedAt = time.Now().UTC()

	res, err := s.exec(ctx, "item", it.ID, `
		UPDATE inventory_items
		SET title = $2, description = $3, latitude = $4, longitude = $5, status = $6, image_path = $7,
			location_source = $8, photo_latitude = $9, photo_longitude = $10, importance_count = $11,
			resolved_count = $12, share_count = $13, section_id = $14, reporter_id = $15,
			approved_at = $16, resolved_at = $17, updated_at = $18
		WHERE id = $1
	`, it.ID, it.Title, it.Description, it.Latitude, it.Longitude, it.Status, it.ImagePath,
		it.LocationSource, it.PhotoLatitude, it.PhotoLongitude, it.ImportanceCount,
		it.ResolvedCount, it.ShareCount, it.SectionID, it.ReporterID, toNullTime(it.ApprovedAt),
		toNullTime(it.ResolvedAt), it.UpdatedAt)
	if err != nil {
		return inventory.Item{}, err
	}
	if err := rowsAffected(res, "item", it.ID); err != nil {
		return inventory.Item{}, err
	}
	return it, nil
}

func (s *Store) scanItem(row interface {
	Scan(dest ...interface{}) error
}) (inventory.Item, error) {
	var (
		it                 inventory.Item
		approved, resolved = toNullTime(nil), toNullTime(nil)
	)
	err := row.Scan(&it.ID, &it.Title, &it.Description, &it.Latitude, &it.Longitude, &it.Status,
		&it.ImagePath, &it.LocationSource, &it.PhotoLatitude, &it.PhotoLongitude,
		&it.ImportanceCount, &it.ResolvedCount, &it.ShareCount, &it.SectionID, &it.ReporterID,
		&approved, &resolved, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return inventory.Item{}, err
	}
	it.ApprovedAt = fromNullTime(approved)
	it.ResolvedAt = fromNullTime(resolved)
	return it, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (inventory.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id)
	it, err := s.scanItem(row)
	if err != nil {
		return inventory.Item{}, mapErr(err, "item", id)
	}
	return it, nil
}

func (s *Store) IncrementItemShares(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "item", id, `
		UPDATE inventory_items SET share_count = share_count + 1 WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	return rowsAffected(res, "item", id)
}

func (s *Store) ListItems(ctx context.Context, filter storage.ItemFilter) ([]inventory.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items`
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
	if filter.SectionID != "" {
		clauses = append(clauses, "section_id = "+arg(filter.SectionID))
	}
	if filter.ReporterID != "" {
		clauses = append(clauses, "reporter_id = "+arg(filter.ReporterID))
	}
	if filter.CategoryCode != "" {
		clauses = append(clauses, `id IN (
			SELECT ic.item_id FROM inventory_item_categories ic
			JOIN inventory_categories c ON c.id = ic.category_id
			WHERE c.code = `+arg(filter.CategoryCode)+`)`)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []inventory.Item
	for rows.Next() {
		it, err := s.scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func (s *Store) CreateVote(ctx context.Context, v inventory.Vote) (inventory.Vote, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, "vote", v.ItemID, `
		INSERT INTO inventory_votes (id, item_id, user_id, kind, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, v.ID, v.ItemID, v.UserID, v.Kind, v.CreatedAt)
	if err != nil {
		return inventory.Vote{}, err
	}
	return v, nil
}

func (s *Store) DeleteVote(ctx context.Context, itemID, userID string, kind inventory.VoteKind) error {
	res, err := s.exec(ctx, "vote", itemID, `
		DELETE FROM inventory_votes WHERE item_id = $1 AND user_id = $2 AND kind = $3
	`, itemID, userID, kind)
	if err != nil {
		return err
	}
	return rowsAffected(res, "vote", itemID)
}

func (s *Store) HasVote(ctx context.Context, itemID, userID string, kind inventory.VoteKind) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM inventory_votes WHERE item_id = $1 AND user_id = $2 AND kind = $3)
	`, itemID, userID, kind)
	return exists, err
}

func (s *Store) CountVotes(ctx context.Context, itemID string, kind inventory.VoteKind) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM inventory_votes WHERE item_id = $1 AND kind = $2
	`, itemID, kind)
	return count, err
}

func (s *Store) UpsertCategory(ctx context.Context, c inventory.Category) (inventory.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory_categories (id, code, name, icon, sort_order, active, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, icon = EXCLUDED.icon, sort_order = EXCLUDED.sort_order,
			active = EXCLUDED.active, parent_id = EXCLUDED.parent_id
		RETURNING id
	`, c.ID, c.Code, c.Name, c.Icon, c.SortOrder, c.Active, c.ParentID)
	if err := row.Scan(&c.ID); err != nil {
		return inventory.Category{}, mapErr(err, "category", c.Code)
	}
	return c, nil
}

const categoryColumns = `id, code, name, icon, sort_order, active, parent_id`

func (s *Store) GetCategoryByCode(ctx context.Context, code string) (inventory.Category, error) {
	var c inventory.Category
	err := s.db.GetContext(ctx, &c, `SELECT `+categoryColumns+` FROM inventory_categories WHERE code = $1`, code)
	if err != nil {
		return inventory.Category{}, mapErr(err, "category", code)
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]inventory.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM inventory_categories`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY sort_order, code`

	var result []inventory.Category
	if err := s.db.SelectContext(ctx, &result, query); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SetItemCategories(ctx context.Context, itemID string, categoryIDs []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_item_categories WHERE item_id = $1`, itemID); err != nil {
		return err
	}
	for _, catID := range categoryIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_item_categories (item_id, category_id) VALUES ($1, $2)
		`, itemID, catID); err != nil {
			return mapErr(err, "item category", catID)
		}
	}
	return tx.Commit()
}

func (s *Store) ListItemCategories(ctx context.Context, itemID string) ([]inventory.Category, error) {
	var result []inventory.Category
	err := s.db.SelectContext(ctx, &result, `
		SELECT c.id, c.code, c.name, c.icon, c.sort_order, c.active, c.parent_id
		FROM inventory_categories c
		JOIN inventory_item_categories ic ON ic.category_id = c.id
		WHERE ic.item_id = $1
		ORDER BY c.sort_order, c.code
	`, itemID)
	if err != nil {
		return nil, err
	}
	return result, nil
}
