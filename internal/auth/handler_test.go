package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(f *loginFixture) *Handler {
	return NewHandler(f.service, NewHTTPCookieJar("", true), nil)
}

func refreshRequest(access, refresh string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	if refresh != "" {
		req.AddCookie(&http.Cookie{Name: RefreshTokenCookieName, Value: refresh})
	}
	return req
}

func TestHandler_Refresh(t *testing.T) {
	f := newLoginFixture(t)
	h := newTestHandler(f)
	pair := f.login(t, "u1", "USER")
	f.clock.Advance(time.Hour)

	rec := httptest.NewRecorder()
	h.Refresh(rec, refreshRequest(pair.Access.Value, pair.Refresh.Value))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	claims, err := f.codec.Validate(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.False(t, claims.Expired)

	cookies := cookiesByName(rec)[RefreshTokenCookieName]
	require.Len(t, cookies, 2)
	assert.Equal(t, -1, cookies[0].MaxAge)
	stored, err := f.store.FindByPersonalID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, stored.TokenValue, cookies[1].Value)
	assert.NotEqual(t, pair.Refresh.Value, cookies[1].Value)

	rec = httptest.NewRecorder()
	h.Refresh(rec, refreshRequest(body.AccessToken, pair.Refresh.Value))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid token"}`, rec.Body.String())
}

func TestHandler_RefreshErrors(t *testing.T) {
	f := newLoginFixture(t)
	h := newTestHandler(f)
	pair := f.login(t, "u1", "USER")

	rec := httptest.NewRecorder()
	h.Refresh(rec, refreshRequest("", pair.Refresh.Value))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"request token not found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Refresh(rec, refreshRequest(pair.Access.Value, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestHandler_Logout(t *testing.T) {
	f := newLoginFixture(t)
	h := newTestHandler(f)
	pair := f.login(t, "u1", "USER")

	authn := NewAuthenticator(f.codec, nil)
	logout := authn.Middleware(RequireAuthenticated(http.HandlerFunc(h.Logout)))

	req := httptest.NewRequest(http.MethodDelete, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access.Value)
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookieName, Value: pair.Refresh.Value})
	rec := httptest.NewRecorder()
	logout.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"logged out"}`, rec.Body.String())
	assert.Equal(t, -1, cookiesByName(rec)[RefreshTokenCookieName][0].MaxAge)

	rec = httptest.NewRecorder()
	h.Refresh(rec, refreshRequest(pair.Access.Value, pair.Refresh.Value))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	logout.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
