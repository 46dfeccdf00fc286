package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"spadeworker/internal/observability"
)

const maxBatchesPerRun = 20

// ExpiredTokenPurger deletes at most batchSize expired refresh tokens per call.
type ExpiredTokenPurger interface {
	DeleteExpired(ctx context.Context, batchSize int) (int64, error)
}

type CleanupHandler struct {
	purger     ExpiredTokenPurger
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

type cleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	Batches              int   `json:"batches"`
}

func NewCleanupHandler(purger ExpiredTokenPurger, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &CleanupHandler{
		purger:     purger,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" || h.purger == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var result cleanupResult
	for result.Batches < maxBatchesPerRun {
		deleted, err := h.purger.DeleteExpired(r.Context(), h.batchSize)
		if err != nil {
			observability.CaptureError(h.logger, "auth_cleanup_failed", err, map[string]any{
				"deleted_refresh_tokens": result.DeletedRefreshTokens,
			})
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
			return
		}
		result.Batches++
		result.DeletedRefreshTokens += deleted
		if deleted < int64(h.batchSize) {
			break
		}
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.DeletedRefreshTokens,
		"batches":                result.Batches,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
