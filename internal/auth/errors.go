package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	// ErrInvalidToken covers bad signatures, malformed tokens and refresh-token mismatches.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRequestTokenNotFound is returned when a required header or cookie is absent.
	ErrRequestTokenNotFound = errors.New("request token not found")
	// ErrUnauthorizedRedirect is returned when a redirect target is not allowlisted.
	ErrUnauthorizedRedirect = errors.New("unauthorized redirect uri")
	ErrUnsupportedProvider  = errors.New("unsupported oauth2 provider")
	ErrInvalidUserInfo      = errors.New("invalid oauth2 user info")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)

// StatusCode maps an auth error to the HTTP status the transport layer reports.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrRequestTokenNotFound),
		errors.Is(err, ErrUnauthorizedRedirect),
		errors.Is(err, ErrUnsupportedProvider),
		errors.Is(err, ErrInvalidUserInfo):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrRefreshTokenNotFound):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	switch {
	case errors.Is(err, ErrRequestTokenNotFound):
		return ErrRequestTokenNotFound.Error()
	case errors.Is(err, ErrUnauthorizedRedirect):
		return ErrUnauthorizedRedirect.Error()
	case errors.Is(err, ErrUnsupportedProvider):
		return ErrUnsupportedProvider.Error()
	case errors.Is(err, ErrInvalidUserInfo):
		return ErrInvalidUserInfo.Error()
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrRefreshTokenNotFound):
		return ErrInvalidToken.Error()
	default:
		return "internal server error"
	}
}

// WriteError renders err as the JSON error body used across the API.
func WriteError(w http.ResponseWriter, err error) {
	writeError(w, StatusCode(err), publicMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
