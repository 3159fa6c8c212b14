package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/civicmap/civicmap/internal/domain/user"
	"github.com/civicmap/civicmap/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "username", "password_hash", "active", "roles", "section_id", "confirmed_at", "created_at",
	})
}

func TestGetUserMapsNoRowsToNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id =`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetUser(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetUserScansRoles(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM users WHERE id =`).
		WithArgs("u1").
		WillReturnRows(userRows().AddRow(
			"u1", "anna@example.com", "anna", "hash", true, "{admin,user}", nil, nil, now,
		))

	u, err := store.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(u.Roles) != 2 || u.Roles[0] != "admin" {
		t.Fatalf("roles not scanned: %v", u.Roles)
	}
	if u.ConfirmedAt != nil {
		t.Fatalf("confirmed_at should be nil: %v", u.ConfirmedAt)
	}
	if !u.IsAdmin() {
		t.Fatal("admin role lost")
	}
}

func TestCreateUserMapsUniqueViolationToConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := store.CreateUser(context.Background(), user.User{
		Email:    "dup@example.com",
		Username: "dup",
		Roles:    []string{user.RoleUser},
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateUserMissingRowIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM users WHERE id =`).
		WithArgs("u1").
		WillReturnRows(userRows().AddRow(
			"u1", "anna@example.com", "anna", "hash", true, "{user}", nil, nil, now,
		))
	mock.ExpectExec(`UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateUser(context.Background(), user.User{ID: "u1", Email: "anna@example.com"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found on zero rows, got %v", err)
	}
}

func TestFindSectionContainingWithoutPostGIS(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`ST_Contains`).
		WillReturnError(errors.New(`pq: function st_contains(geometry, geometry) does not exist (SQLSTATE 42883)`))

	_, err := store.FindSectionContaining(context.Background(), 41.12, 1.25)
	if !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}

	// The failure is cached: no further queries reach the database.
	_, err = store.FindSectionContaining(context.Background(), 41.12, 1.25)
	if !errors.Is(err, storage.ErrUnsupported) {
		t.Fatalf("expected cached unsupported, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}

	// The cache is per store: a fresh store queries again.
	other, otherMock := newMockStore(t)
	otherMock.ExpectQuery(`ST_Contains`).
		WithArgs(1.25, 41.12).
		WillReturnError(sql.ErrNoRows)
	if _, err := other.FindSectionContaining(context.Background(), 41.12, 1.25); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("fresh store should query again, got %v", err)
	}
}

func TestFindSectionContainingNoMatch(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`ST_Contains`).
		WithArgs(1.25, 41.12).
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindSectionContaining(context.Background(), 41.12, 1.25)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
