package postgres

import (
	"context"
	"fmt"

	"github.com/civicmap/civicmap/internal/domain/inventory"
	"github.com/civicmap/civicmap/internal/storage"
)

func (s *Store) CountItemsByZone(ctx context.Context) ([]storage.ZoneCount, error) {
	var result []storage.ZoneCount
	err := s.db.SelectContext(ctx, &result, `
		SELECT i.section_id, sec.district_code, sec.code AS section_code, COUNT(*) AS count
		FROM inventory_items i
		JOIN sections sec ON sec.id = i.section_id
		WHERE i.status IN ('approved', 'resolved') AND i.section_id IS NOT NULL
		GROUP BY i.section_id, sec.district_code, sec.code
		ORDER BY count DESC
	`)
	return result, err
}

func (s *Store) CountItemsByCategory(ctx context.Context, limit int) ([]storage.CategoryCount, error) {
	query := `
		SELECT c.code, c.name, COUNT(*) AS count
		FROM inventory_item_categories ic
		JOIN inventory_categories c ON c.id = ic.category_id
		JOIN inventory_items i ON i.id = ic.item_id
		WHERE i.status IN ('approved', 'resolved')
		GROUP BY c.code, c.name
		ORDER BY count DESC, c.code`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var result []storage.CategoryCount
	err := s.db.SelectContext(ctx, &result, query, args...)
	return result, err
}

func (s *Store) CountItemsByMonth(ctx context.Context, months int) ([]storage.MonthCount, error) {
	query := `
		SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month, COUNT(*) AS count
		FROM inventory_items`
	var args []interface{}
	if months > 0 {
		query += fmt.Sprintf(` WHERE created_at >= now() - interval '%d months'`, months)
	}
	query += `
		GROUP BY month
		ORDER BY month`

	var result []storage.MonthCount
	err := s.db.SelectContext(ctx, &result, query, args...)
	return result, err
}

func (s *Store) CountItemsByStatus(ctx context.Context) (map[inventory.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM inventory_items GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[inventory.Status]int)
	for rows.Next() {
		var (
			status inventory.Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
