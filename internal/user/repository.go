package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

const userColumns = `id, personal_id, provider, name, email, profile_image_url, role, created_at, updated_at`

// Upsert creates the user on first login and refreshes the profile fields on
// later ones. The stored role is never overwritten.
func (r *Repository) Upsert(ctx context.Context, reg Registration) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
	}
	now := r.now().UTC()

	var u User
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, personal_id, provider, name, email, profile_image_url, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (personal_id)
		DO UPDATE SET
			provider = EXCLUDED.provider,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			profile_image_url = EXCLUDED.profile_image_url,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		id.String(), reg.PersonalID, reg.Provider, reg.Name, reg.Email, reg.ProfileImageURL, RoleUser, now,
	).Scan(&u.ID, &u.PersonalID, &u.Provider, &u.Name, &u.Email, &u.ProfileImageURL, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}

	return u, nil
}

func (r *Repository) GetByPersonalID(ctx context.Context, personalID string) (User, error) {
	var u User
	err := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE personal_id = $1`, personalID).
		Scan(&u.ID, &u.PersonalID, &u.Provider, &u.Name, &u.Email, &u.ProfileImageURL, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	return u, nil
}
