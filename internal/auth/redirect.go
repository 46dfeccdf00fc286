package auth

import (
	"net/url"
	"strings"
)

// RedirectValidator checks post-login redirect targets against a fixed
// allowlist. Only host (case-insensitive) and port are compared; a port that
// is implied by the scheme does not match an explicit one.
type RedirectValidator struct {
	allowed []*url.URL
}

func NewRedirectValidator(uris []string) *RedirectValidator {
	v := &RedirectValidator{}
	for _, raw := range uris {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Hostname() == "" {
			continue
		}
		v.allowed = append(v.allowed, u)
	}
	return v
}

func (v *RedirectValidator) IsAuthorized(raw string) bool {
	target, err := url.Parse(raw)
	if err != nil || target.Hostname() == "" {
		return false
	}

	for _, allowed := range v.allowed {
		if strings.EqualFold(allowed.Hostname(), target.Hostname()) && allowed.Port() == target.Port() {
			return true
		}
	}
	return false
}

func (v *RedirectValidator) Validate(raw string) error {
	if !v.IsAuthorized(raw) {
		return ErrUnauthorizedRedirect
	}
	return nil
}
