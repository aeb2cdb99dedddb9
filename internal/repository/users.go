package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
)

const userColumns = `id, email, full_name, phone, city_tier, created_at`

// SaveUser creates or updates a profile. Emails are unique across users.
func (r *SQLRepository) SaveUser(ctx context.Context, user *domain.User) error {
	if err := requireUser(user.ID); err != nil {
		return err
	}
	if user.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			phone = excluded.phone,
			city_tier = excluded.city_tier
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		user.ID, user.Email, user.FullName, user.Phone, user.CityTier, user.CreatedAt,
	)
	return r.mapWriteError(err)
}

// GetUser retrieves a profile by ID.
func (r *SQLRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, r.rebind(query), userID))
}

// GetUserByEmail retrieves a profile by email, case-insensitively.
func (r *SQLRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return scanUser(r.db.QueryRowContext(ctx, r.rebind(query), email))
}

func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	var phone sql.NullString

	err := row.Scan(&u.ID, &u.Email, &u.FullName, &phone, &u.CityTier, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Phone = phone.String
	return &u, nil
}
