package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/civicmap/civicmap/internal/domain/user"
)

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = time.Now().UTC()

	_, err := s.exec(ctx, "user", u.Email, `
		INSERT INTO users (id, email, username, password_hash, active, roles, section_id, confirmed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.Active, pq.Array(u.Roles), u.SectionID, toNullTime(u.ConfirmedAt), u.CreatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return user.User{}, err
	}
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = existing.CreatedAt

	res, err := s.exec(ctx, "user", u.ID, `
		UPDATE users
		SET email = $2, username = $3, password_hash = $4, active = $5, roles = $6, section_id = $7, confirmed_at = $8
		WHERE id = $1
	`, u.ID, u.Email, u.Username, u.PasswordHash, u.Active, pq.Array(u.Roles), u.SectionID, toNullTime(u.ConfirmedAt))
	if err != nil {
		return user.User{}, err
	}
	if err := rowsAffected(res, "user", u.ID); err != nil {
		return user.User{}, err
	}
	return u, nil
}

const userColumns = `id, email, username, password_hash, active, roles, section_id, confirmed_at, created_at`

func (s *Store) scanUser(row interface {
	Scan(dest ...interface{}) error
}) (user.User, error) {
	var (
		u         user.User
		roles     pq.StringArray
		confirmed = toNullTime(nil)
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Active, &roles, &u.SectionID, &confirmed, &u.CreatedAt); err != nil {
		return user.User{}, err
	}
	u.Roles = []string(roles)
	u.ConfirmedAt = fromNullTime(confirmed)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := s.scanUser(row)
	if err != nil {
		return user.User{}, mapErr(err, "user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	u, err := s.scanUser(row)
	if err != nil {
		return user.User{}, mapErr(err, "user", email)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []user.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}
