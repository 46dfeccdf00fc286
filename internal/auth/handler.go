package auth

import (
	"net/http"

	"spadeworker/internal/observability"
)

type Handler struct {
	service *Service
	cookies CookieJar
	logger  *observability.Logger
}

func NewHandler(service *Service, cookies CookieJar, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Handler{service: service, cookies: cookies, logger: logger}
}

type reissueResponse struct {
	AccessToken string `json:"accessToken"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	accessToken, ok := BearerToken(r)
	if !ok {
		WriteError(w, ErrRequestTokenNotFound)
		return
	}
	refreshToken, _ := h.cookies.Get(r, RefreshTokenCookieName)

	pair, err := h.service.Reissue(r.Context(), accessToken, refreshToken)
	if err != nil {
		h.report("token_reissue_failed", err)
		WriteError(w, err)
		return
	}

	setRefreshCookie(w, r, h.cookies, pair.Refresh.Value, h.service.Codec().RefreshTTL())
	writeJSON(w, http.StatusOK, reissueResponse{AccessToken: pair.Access.Value})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), identity.Subject); err != nil {
		h.report("logout_failed", err)
		WriteError(w, err)
		return
	}

	h.cookies.Clear(w, r, RefreshTokenCookieName)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) report(message string, err error) {
	if StatusCode(err) >= http.StatusInternalServerError {
		observability.CaptureError(h.logger, message, err, nil)
		return
	}
	h.logger.Info(message, map[string]any{"error": err.Error()})
}
