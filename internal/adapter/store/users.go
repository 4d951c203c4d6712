package store

import (
	"context"
	"fmt"

	"planit/internal/domain"
)

// EnsureUser creates u if no user with u.ID exists yet. Existing profiles
// are left untouched.
func (s *SQLiteStore) EnsureUser(ctx context.Context, u domain.User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, nickname, email, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		u.ID, u.Name, u.Nickname, u.Email, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, nickname, email, created_at FROM users WHERE id = ?", id)
	return scanUser(row)
}

// UpdateUser applies the non-nil fields of upd.
func (s *SQLiteStore) UpdateUser(ctx context.Context, id string, upd domain.UserUpdate) (*domain.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Nickname != nil {
		u.Nickname = *upd.Nickname
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE users SET name = ?, nickname = ? WHERE id = ?", u.Name, u.Nickname, id,
	); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	var created string
	if err := row.Scan(&u.ID, &u.Name, &u.Nickname, &u.Email, &created); err != nil {
		return nil, notFound(err, "user")
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}
