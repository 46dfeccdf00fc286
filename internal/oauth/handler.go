package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"spadeworker/internal/auth"
	"spadeworker/internal/observability"
)

// authRequestMaxAge bounds how long an authorization request may take, in seconds.
const authRequestMaxAge = 180

// UserRegistrar stores the user behind a successful login and returns the
// authorities the session tokens should carry.
type UserRegistrar interface {
	Register(ctx context.Context, provider string, attrs map[string]any) ([]string, error)
}

type HandlerConfig struct {
	Providers map[string]Provider
	Cookies   auth.CookieJar
	Redirects *auth.RedirectValidator
	Registrar UserRegistrar
	Success   *auth.SuccessHandler
	Failure   *auth.FailureHandler
	Logger    *observability.Logger
}

type Handler struct {
	providers map[string]Provider
	cookies   auth.CookieJar
	redirects *auth.RedirectValidator
	registrar UserRegistrar
	success   *auth.SuccessHandler
	failure   *auth.FailureHandler
	logger    *observability.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		providers: cfg.Providers,
		cookies:   cfg.Cookies,
		redirects: cfg.Redirects,
		registrar: cfg.Registrar,
		success:   cfg.Success,
		failure:   cfg.Failure,
		logger:    cfg.Logger,
	}
	if h.logger == nil {
		h.logger = observability.NewNopLogger()
	}
	return h
}

// Authorize starts the flow. State and the PKCE verifier travel in a
// short-lived cookie, along with the optional post-login redirect target.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers[name]
	if !ok {
		auth.WriteError(w, auth.ErrUnsupportedProvider)
		return
	}

	target := r.URL.Query().Get("redirect_uri")
	if target != "" {
		if err := h.redirects.Validate(target); err != nil {
			auth.WriteError(w, err)
			return
		}
	}

	state := oauth2.GenerateVerifier()
	verifier := oauth2.GenerateVerifier()

	h.cookies.Set(w, auth.AuthRequestCookieName, encodeAuthRequest(name, state, verifier), authRequestMaxAge)
	if target != "" {
		h.cookies.Set(w, auth.RedirectURICookieName, target, authRequestMaxAge)
	} else {
		h.cookies.Clear(w, r, auth.RedirectURICookieName)
	}

	http.Redirect(w, r, provider.AuthCodeURL(state, verifier), http.StatusFound)
}

// Callback completes the flow and hands the principal to the success handler.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	query := r.URL.Query()

	if reason := query.Get("error"); reason != "" {
		h.failure.OnAuthenticationFailure(w, r, reason)
		return
	}

	provider, ok := h.providers[name]
	if !ok {
		h.failure.OnAuthenticationFailure(w, r, "unsupported_provider")
		return
	}

	raw, ok := h.cookies.Get(r, auth.AuthRequestCookieName)
	if !ok {
		h.failure.OnAuthenticationFailure(w, r, "authorization_request_not_found")
		return
	}
	req, err := decodeAuthRequest(raw)
	if err != nil || req.provider != name ||
		subtle.ConstantTimeCompare([]byte(req.state), []byte(query.Get("state"))) != 1 {
		h.failure.OnAuthenticationFailure(w, r, "invalid_state")
		return
	}

	code := query.Get("code")
	if code == "" {
		h.failure.OnAuthenticationFailure(w, r, "invalid_request")
		return
	}

	attrs, err := provider.Authenticate(r.Context(), code, req.verifier)
	if err != nil {
		h.logger.Warn("oauth2_code_exchange_failed", map[string]any{"provider": name, "error": err.Error()})
		h.failure.OnAuthenticationFailure(w, r, "authentication_failed")
		return
	}

	authorities, err := h.registrar.Register(r.Context(), name, attrs)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidUserInfo) || errors.Is(err, auth.ErrUnsupportedProvider) {
			h.failure.OnAuthenticationFailure(w, r, "invalid_user_info")
			return
		}
		h.writeError(w, "oauth2_user_registration_failed", err)
		return
	}

	err = h.success.OnAuthenticationSuccess(w, r, auth.Principal{
		Provider:    name,
		Attributes:  attrs,
		Authorities: authorities,
	})
	if err != nil {
		h.writeError(w, "oauth2_success_handler_failed", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, event string, err error) {
	if auth.StatusCode(err) >= http.StatusInternalServerError {
		observability.CaptureError(h.logger, event, err, nil)
	} else {
		h.logger.Info(event, map[string]any{"error": err.Error()})
	}
	auth.WriteError(w, err)
}

type authRequest struct {
	provider string
	state    string
	verifier string
}

func encodeAuthRequest(provider, state, verifier string) string {
	return url.Values{"p": {provider}, "s": {state}, "v": {verifier}}.Encode()
}

func decodeAuthRequest(raw string) (authRequest, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return authRequest{}, err
	}
	req := authRequest{provider: values.Get("p"), state: values.Get("s"), verifier: values.Get("v")}
	if req.provider == "" || req.state == "" || req.verifier == "" {
		return authRequest{}, errors.New("incomplete authorization request")
	}
	return req, nil
}
