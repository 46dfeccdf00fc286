package auth

import (
	"net/http"

	"spadeworker/internal/observability"
)

// FailureHandler sends the browser back to the client with an error code when
// the upstream login did not succeed.
type FailureHandler struct {
	redirects     *RedirectValidator
	cookies       CookieJar
	defaultTarget string
	logger        *observability.Logger
}

func NewFailureHandler(redirects *RedirectValidator, cookies CookieJar, defaultTarget string, logger *observability.Logger) *FailureHandler {
	if defaultTarget == "" {
		defaultTarget = "/"
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &FailureHandler{
		redirects:     redirects,
		cookies:       cookies,
		defaultTarget: defaultTarget,
		logger:        logger,
	}
}

func (h *FailureHandler) OnAuthenticationFailure(w http.ResponseWriter, r *http.Request, reason string) {
	if responseCommitted(w) {
		return
	}

	target, err := resolveTarget(r, h.cookies, h.redirects, h.defaultTarget)
	if err != nil {
		target = h.defaultTarget
	}
	clearFlowCookies(w, r, h.cookies)

	location, err := withQuery(target, "error", reason)
	if err != nil {
		location = h.defaultTarget
	}

	h.logger.Warn("oauth2_login_failed", map[string]any{
		"path":   r.URL.Path,
		"reason": reason,
	})
	http.Redirect(w, r, location, http.StatusFound)
}
