package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"spadeworker/internal/auth"
	"spadeworker/internal/observability"
)

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Current(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, auth.ErrRequestTokenNotFound):
			writeError(w, http.StatusUnauthorized, "authentication required")
		default:
			observability.CaptureError(h.logger, "get_current_user_failed", err, nil)
			writeError(w, http.StatusInternalServerError, "failed to load user")
		}
		return
	}

	writeJSON(w, http.StatusOK, u)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
