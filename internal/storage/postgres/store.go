// Package postgres implements the storage interfaces backed by PostgreSQL.
// Spatial lookups use PostGIS when the extension is installed and report
// storage.ErrUnsupported otherwise so callers can fall back to in-process
// geometry.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/civicmap/civicmap/internal/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db      *sqlx.DB
	postgis postgisState
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.InitiativeStore = (*Store)(nil)
var _ storage.InventoryStore = (*Store)(nil)
var _ storage.GeoStore = (*Store)(nil)
var _ storage.ContainerStore = (*Store)(nil)
var _ storage.DonationStore = (*Store)(nil)
var _ storage.AnalyticsStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database and applies pool settings.
func Open(dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	return db, nil
}

// mapErr converts driver errors into the storage sentinels.
func mapErr(err error, what, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrConflict)
	}
	return err
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func rowsAffected(res sql.Result, what, id string) error {
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%s %s: %w", what, id, storage.ErrNotFound)
	}
	return nil
}

// requireExec runs an Exec and maps the error.
func (s *Store) exec(ctx context.Context, what, id, query string, args ...interface{}) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, what, id)
	}
	return res, nil
}
