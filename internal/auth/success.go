package auth

import (
	"fmt"
	"net/http"
	"net/url"

	"spadeworker/internal/observability"
)

// SuccessHandler finishes an OAuth2 login: it issues the session token pair,
// stores the refresh token and redirects the browser back to the client.
type SuccessHandler struct {
	codec         *Codec
	store         RefreshTokenStore
	redirects     *RedirectValidator
	cookies       CookieJar
	defaultTarget string
	logger        *observability.Logger
	metrics       Metrics
}

type SuccessHandlerConfig struct {
	Codec         *Codec
	Store         RefreshTokenStore
	Redirects     *RedirectValidator
	Cookies       CookieJar
	DefaultTarget string
	Logger        *observability.Logger
	Metrics       Metrics
}

func NewSuccessHandler(cfg SuccessHandlerConfig) *SuccessHandler {
	h := &SuccessHandler{
		codec:         cfg.Codec,
		store:         cfg.Store,
		redirects:     cfg.Redirects,
		cookies:       cfg.Cookies,
		defaultTarget: cfg.DefaultTarget,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
	if h.defaultTarget == "" {
		h.defaultTarget = "/"
	}
	if h.metrics == nil {
		h.metrics = nopMetrics{}
	}
	if h.logger == nil {
		h.logger = observability.NewNopLogger()
	}
	return h
}

// OnAuthenticationSuccess returns an error without writing a response when the
// flow has to be aborted; the caller renders it.
func (h *SuccessHandler) OnAuthenticationSuccess(w http.ResponseWriter, r *http.Request, principal Principal) error {
	if responseCommitted(w) {
		h.logger.Debug("oauth2_success_response_committed", map[string]any{"path": r.URL.Path})
		return nil
	}

	target, err := resolveTarget(r, h.cookies, h.redirects, h.defaultTarget)
	if err != nil {
		return err
	}

	provider, err := ParseProviderType(principal.Provider)
	if err != nil {
		return err
	}
	userInfo, err := NewOAuth2UserInfo(provider, principal.Attributes)
	if err != nil {
		return err
	}

	pair, err := issuePair(h.codec, h.metrics, userInfo.PersonalID(), principal.Authorities)
	if err != nil {
		return err
	}

	if err := h.store.SaveOrUpdate(r.Context(), UserRefreshToken{
		PersonalID: userInfo.PersonalID(),
		TokenValue: pair.Refresh.Value,
		ExpiresAt:  pair.Refresh.ExpiresAt,
	}); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}

	clearFlowCookies(w, r, h.cookies)
	setRefreshCookie(w, r, h.cookies, pair.Refresh.Value, h.codec.RefreshTTL())

	location, err := withQuery(target, "token", pair.Access.Value)
	if err != nil {
		return err
	}

	h.logger.Info("oauth2_login_succeeded", map[string]any{
		"provider":    string(provider),
		"personal_id": userInfo.PersonalID(),
	})
	http.Redirect(w, r, location, http.StatusFound)
	return nil
}

// resolveTarget prefers the redirect cookie written during the authorization
// request. A cookie value outside the allowlist aborts the flow.
func resolveTarget(r *http.Request, cookies CookieJar, redirects *RedirectValidator, fallback string) (string, error) {
	target, ok := cookies.Get(r, RedirectURICookieName)
	if !ok {
		return fallback, nil
	}
	if err := redirects.Validate(target); err != nil {
		return "", err
	}
	return target, nil
}

func clearFlowCookies(w http.ResponseWriter, r *http.Request, cookies CookieJar) {
	cookies.Clear(w, r, AuthRequestCookieName)
	cookies.Clear(w, r, RedirectURICookieName)
}

func withQuery(target, key, value string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse redirect target: %w", err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type committer interface {
	Committed() bool
}

type unwrapper interface {
	Unwrap() http.ResponseWriter
}

// responseCommitted walks wrapped writers looking for one that knows whether
// headers were already sent.
func responseCommitted(w http.ResponseWriter) bool {
	for w != nil {
		if c, ok := w.(committer); ok {
			return c.Committed()
		}
		u, ok := w.(unwrapper)
		if !ok {
			return false
		}
		w = u.Unwrap()
	}
	return false
}
