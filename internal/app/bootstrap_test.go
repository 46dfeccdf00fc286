package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spadeworker/internal/auth"
	"spadeworker/internal/config"
	"spadeworker/internal/observability"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() config.Config {
	return config.Config{
		Env:        "test",
		CronSecret: "cron-secret",
		Token: config.TokenConfig{
			Secret:     testSecret,
			Issuer:     "spadeworker",
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 14 * 24 * time.Hour,
		},
		OAuth2: config.OAuth2Config{
			AuthorizedRedirectURIs: []string{"http://localhost:3000/oauth/redirect"},
			DefaultTargetURL:       "http://localhost:3000/",
		},
		RateLimit:    config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		TokenCleanup: config.CleanupConfig{BatchSize: 500},
		ProjectImages: config.ProjectImageConfig{
			DefaultThumbnailName: "default-project-thumbnail.png",
			DefaultThumbnailURI:  "/static/images/default-project-thumbnail.png",
		},
	}
}

type testApp struct {
	handler http.Handler
	mock    sqlmock.Sqlmock
	store   *auth.MemoryRefreshTokenStore
}

func newTestApp(t *testing.T) testApp {
	t.Helper()
	database, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	store := auth.NewMemoryRefreshTokenStore()
	handler, err := NewHandler(Dependencies{
		Config:       testConfig(),
		DB:           database,
		Logger:       observability.NewNopLogger(),
		Metrics:      observability.NewMetrics(),
		RefreshStore: store,
	})
	require.NoError(t, err)

	return testApp{handler: handler, mock: mock, store: store}
}

func (a testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestNewHandler_RejectsMissingSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Token.Secret = ""

	_, err := NewHandler(Dependencies{Config: cfg, RefreshStore: auth.NewMemoryRefreshTokenStore()})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	a.mock.ExpectPing()

	rec := a.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	require.NoError(t, a.mock.ExpectationsWereMet())
}

func TestRefreshRoundTrip(t *testing.T) {
	a := newTestApp(t)
	codec, err := auth.NewCodec(testSecret, 30*time.Minute, 14*24*time.Hour, auth.WithIssuer("spadeworker"))
	require.NoError(t, err)

	access, err := codec.IssueAccessToken("u1", []string{"USER"})
	require.NoError(t, err)
	refresh, err := codec.IssueRefreshToken("u1", []string{"USER"})
	require.NoError(t, err)
	require.NoError(t, a.store.SaveOrUpdate(context.Background(), auth.UserRefreshToken{
		PersonalID: "u1",
		TokenValue: refresh.Value,
		ExpiresAt:  refresh.ExpiresAt,
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+access.Value)
	req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookieName, Value: refresh.Value})
	rec := a.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["accessToken"])

	stored, err := a.store.FindByPersonalID(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEqual(t, refresh.Value, stored.TokenValue)
}

func TestRefreshWithoutAccessToken(t *testing.T) {
	a := newTestApp(t)

	rec := a.do(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRequireAuthentication(t *testing.T) {
	a := newTestApp(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/auth/logout"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodPost, "/api/images"},
		{http.MethodPost, "/api/projects"},
		{http.MethodPost, "/api/projects/1/likes"},
		{http.MethodDelete, "/api/projects/1/subscribes"},
	} {
		rec := a.do(httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.method+" "+tc.path)
	}
}

func TestProjectWritesRequireUserRole(t *testing.T) {
	a := newTestApp(t)
	codec, err := auth.NewCodec(testSecret, 30*time.Minute, 14*24*time.Hour, auth.WithIssuer("spadeworker"))
	require.NoError(t, err)
	guest, err := codec.IssueAccessToken("u2", []string{"GUEST"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer "+guest.Value)
	rec := a.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListProjectsIsPublic(t *testing.T) {
	a := newTestApp(t)
	a.mock.ExpectQuery(regexp.QuoteMeta("FROM projects p")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "description", "thumbnail_image_uri", "owner_id",
			"like_count", "subscribe_count", "created_at", "updated_at",
		}))

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
	require.NoError(t, a.mock.ExpectationsWereMet())
}

func TestUnknownProviderIsRejected(t *testing.T) {
	a := newTestApp(t)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/oauth2/authorization/google", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupRouteUsesRefreshStore(t *testing.T) {
	a := newTestApp(t)
	require.NoError(t, a.store.SaveOrUpdate(context.Background(), auth.UserRefreshToken{
		PersonalID: "stale",
		TokenValue: "v",
		ExpiresAt:  time.Now().Add(-time.Hour),
	}))

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	req.Header.Set("Authorization", "Bearer cron-secret")
	rec := a.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_refresh_tokens":1`)
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	a := newTestApp(t)
	_ = a.do(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))

	rec := a.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var found bool
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "spadeworker_http_requests_total") && strings.Contains(line, `route="/api/auth/refresh"`) {
			found = true
		}
	}
	assert.True(t, found)
}
