package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spadeworker/internal/auth"
	"spadeworker/internal/observability"
)

type memoryStore struct {
	users map[string]User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[string]User{}}
}

func (s *memoryStore) Upsert(_ context.Context, reg Registration) (User, error) {
	u, ok := s.users[reg.PersonalID]
	if !ok {
		u = User{ID: "id-" + reg.PersonalID, PersonalID: reg.PersonalID, Role: RoleUser}
	}
	u.Provider, u.Name, u.Email, u.ProfileImageURL = reg.Provider, reg.Name, reg.Email, reg.ProfileImageURL
	s.users[reg.PersonalID] = u
	return u, nil
}

func (s *memoryStore) GetByPersonalID(_ context.Context, personalID string) (User, error) {
	u, ok := s.users[personalID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func TestService_Register(t *testing.T) {
	store := newMemoryStore()
	service := NewService(store)

	roles, err := service.Register(context.Background(), "github", map[string]any{
		"id": float64(42), "login": "octocat", "email": "octo@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{RoleUser}, roles)
	assert.Equal(t, "GITHUB", store.users["github:42"].Provider)
	assert.Equal(t, "octocat", store.users["github:42"].Name)

	store.users["github:42"] = User{ID: "id-42", PersonalID: "github:42", Role: RoleAdmin}
	roles, err = service.Register(context.Background(), "github", map[string]any{"id": float64(42), "name": "Octo"})
	require.NoError(t, err)
	assert.Equal(t, []string{RoleAdmin}, roles)

	_, err = service.Register(context.Background(), "myspace", map[string]any{"id": "1"})
	assert.ErrorIs(t, err, auth.ErrUnsupportedProvider)
}

func TestHandler_Me(t *testing.T) {
	store := newMemoryStore()
	store.users["u1"] = User{ID: "id-u1", PersonalID: "u1", Name: "Kim", Role: RoleUser}
	handler := NewHandler(NewService(store), observability.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: "u1", Authorities: []string{RoleUser}}))
	rec := httptest.NewRecorder()
	handler.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Kim", got.Name)

	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{Subject: "ghost"}))
	rec = httptest.NewRecorder()
	handler.Me(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.Me(rec, httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRepository_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (personal_id)")).
		WithArgs(sqlmock.AnyArg(), "u1", "GOOGLE", "Kim", "kim@example.com", "", RoleUser, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "personal_id", "provider", "name", "email", "profile_image_url", "role", "created_at", "updated_at"}).
			AddRow("0190-id", "u1", "GOOGLE", "Kim", "kim@example.com", "", RoleAdmin, now, now))

	u, err := repo.Upsert(context.Background(), Registration{PersonalID: "u1", Provider: "GOOGLE", Name: "Kim", Email: "kim@example.com"})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByPersonalID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE personal_id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewRepository(db).GetByPersonalID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
