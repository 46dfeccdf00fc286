package auth

import (
	"net/http"
	"strings"

	"spadeworker/internal/observability"
)

// Authenticator establishes the request identity from a bearer access token.
type Authenticator struct {
	codec  *Codec
	logger *observability.Logger
}

func NewAuthenticator(codec *Codec, logger *observability.Logger) *Authenticator {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Authenticator{codec: codec, logger: logger}
}

// Middleware never rejects a request. A missing, malformed, expired or
// non-access token leaves the request unauthenticated and route guards decide.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.codec.Validate(tokenStr)
		if err != nil {
			a.logger.Debug("bearer_token_rejected", map[string]any{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			next.ServeHTTP(w, r)
			return
		}
		if claims.Expired || claims.Kind != TokenKindAccess {
			next.ServeHTTP(w, r)
			return
		}

		ctx := WithIdentity(r.Context(), Identity{
			Subject:     claims.Subject,
			Authorities: claims.Authorities,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuthenticated answers 401 for requests without an identity.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole answers 401 without an identity and 403 when the identity holds
// none of the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			for _, role := range roles {
				if identity.HasAuthority(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "access denied")
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		return "", false
	}
	return tokenStr, true
}
