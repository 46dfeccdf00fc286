package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresRefreshTokenStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewPostgresRefreshTokenStore(db)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	return store, mock
}

func TestPostgresStore_FindByPersonalID(t *testing.T) {
	store, mock := newMockStore(t)
	expires := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_refresh_tokens")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "personal_id", "token_value", "expires_at", "updated_at"}).
			AddRow("id-1", "u1", "tok", expires, expires))

	token, err := store.FindByPersonalID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", token.ID)
	assert.Equal(t, "tok", token.TokenValue)
	assert.True(t, expires.Equal(token.ExpiresAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindByPersonalIDAndTokenValue_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE personal_id = $1 AND token_value = $2")).
		WithArgs("u1", "stale").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByPersonalIDAndTokenValue(context.Background(), "u1", "stale")
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindWrapsDriverErrors(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection refused")

	mock.ExpectQuery(regexp.QuoteMeta("FROM user_refresh_tokens")).
		WithArgs("u1").
		WillReturnError(boom)

	_, err := store.FindByPersonalID(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrRefreshTokenNotFound)
}

func TestPostgresStore_SaveOrUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	expires := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (personal_id)")).
		WithArgs(sqlmock.AnyArg(), "u1", "new-token", expires, store.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveOrUpdate(context.Background(), UserRefreshToken{
		PersonalID: "u1",
		TokenValue: "new-token",
		ExpiresAt:  expires,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAndExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM user_refresh_tokens WHERE personal_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	require.NoError(t, store.DeleteAllByPersonalID(context.Background(), "u1"))
	exists, err := store.ExistsByPersonalID(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpired(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("WITH stale AS")).
		WithArgs(store.now(), 500).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := store.DeleteExpired(context.Background(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 7, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
