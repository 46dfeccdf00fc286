package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ RefreshTokenStore = (*PostgresRefreshTokenStore)(nil)

// PostgresRefreshTokenStore is the Postgres-backed RefreshTokenStore. The unique index on
// personal_id turns SaveOrUpdate into a single atomic upsert.
type PostgresRefreshTokenStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRefreshTokenStore(db *sql.DB) *PostgresRefreshTokenStore {
	return &PostgresRefreshTokenStore{db: db, now: time.Now}
}

func (r *PostgresRefreshTokenStore) FindByPersonalID(ctx context.Context, personalID string) (UserRefreshToken, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, personal_id, token_value, expires_at, updated_at
		FROM user_refresh_tokens
		WHERE personal_id = $1
	`, personalID))
}

func (r *PostgresRefreshTokenStore) FindByPersonalIDAndTokenValue(ctx context.Context, personalID, tokenValue string) (UserRefreshToken, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, personal_id, token_value, expires_at, updated_at
		FROM user_refresh_tokens
		WHERE personal_id = $1 AND token_value = $2
	`, personalID, tokenValue))
}

func (r *PostgresRefreshTokenStore) scanOne(row *sql.Row) (UserRefreshToken, error) {
	var token UserRefreshToken
	err := row.Scan(&token.ID, &token.PersonalID, &token.TokenValue, &token.ExpiresAt, &token.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRefreshToken{}, ErrRefreshTokenNotFound
		}
		return UserRefreshToken{}, fmt.Errorf("query refresh token: %w", err)
	}
	return token, nil
}

func (r *PostgresRefreshTokenStore) SaveOrUpdate(ctx context.Context, token UserRefreshToken) error {
	if token.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate refresh token id: %w", err)
		}
		token.ID = id.String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_refresh_tokens (id, personal_id, token_value, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (personal_id)
		DO UPDATE SET
			token_value = EXCLUDED.token_value,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, token.ID, token.PersonalID, token.TokenValue, token.ExpiresAt.UTC(), r.now().UTC())
	if err != nil {
		return fmt.Errorf("upsert refresh token: %w", err)
	}

	return nil
}

func (r *PostgresRefreshTokenStore) DeleteAllByPersonalID(ctx context.Context, personalID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_refresh_tokens WHERE personal_id = $1`, personalID)
	if err != nil {
		return fmt.Errorf("delete refresh tokens: %w", err)
	}
	return nil
}

func (r *PostgresRefreshTokenStore) ExistsByPersonalID(ctx context.Context, personalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_refresh_tokens WHERE personal_id = $1)
	`, personalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return exists, nil
}

// DeleteExpired removes up to batchSize rows whose refresh token has expired.
func (r *PostgresRefreshTokenStore) DeleteExpired(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM user_refresh_tokens
			WHERE expires_at < $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM user_refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, r.now().UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}
