package project

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"spadeworker/internal/auth"
	"spadeworker/internal/media"
	"spadeworker/internal/observability"
	"spadeworker/internal/user"
)

const maxFormBytes = 12 << 20

type Handler struct {
	service *Service
	logger  *observability.Logger
}

func NewHandler(service *Service, logger *observability.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list_projects_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, projects)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get_project_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.service.Create(r.Context(), identity.Subject, input)
	if err != nil {
		h.fail(w, "create_project_failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	p, err := h.service.Update(r.Context(), identity.Subject, id, input)
	if err != nil {
		h.fail(w, "update_project_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity.Subject, id); err != nil {
		h.fail(w, "delete_project_failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.service.Like, http.StatusCreated, "project liked")
}

func (h *Handler) CancelLike(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.service.CancelLike, http.StatusOK, "project like canceled")
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.service.Subscribe, http.StatusCreated, "project subscribed")
}

func (h *Handler) CancelSubscribe(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.service.CancelSubscribe, http.StatusOK, "project subscription canceled")
}

func (h *Handler) relation(w http.ResponseWriter, r *http.Request, apply func(context.Context, string, int64) error, status int, message string) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if err := apply(r.Context(), identity.Subject, id); err != nil {
		h.fail(w, "project_relation_failed", err)
		return
	}

	writeJSON(w, status, map[string]string{"message": message})
}

func (h *Handler) fail(w http.ResponseWriter, event string, err error) {
	status := statusCode(err)
	if status >= http.StatusInternalServerError {
		observability.CaptureError(h.logger, event, err, nil)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrLikeNotFound),
		errors.Is(err, ErrSubscribeNotFound), errors.Is(err, user.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateLike), errors.Is(err, ErrDuplicateSubscribe):
		return http.StatusConflict
	case errors.Is(err, media.ErrEmptyFile), errors.Is(err, media.ErrNotImage):
		return http.StatusBadRequest
	case errors.Is(err, media.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	return identity, true
}

func projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return 0, false
	}
	return id, true
}

// parseInput reads the multipart project form. The thumbnailImage part is optional.
func parseInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return Input{}, false
	}

	input := Input{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
	}

	file, header, err := r.FormFile("thumbnailImage")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return input, true
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid thumbnail image")
		return Input{}, false
	}
	defer file.Close()

	img, err := media.ReadImage(media.KindProjectThumbnail, file, header)
	if err != nil {
		media.WriteUploadError(w, err)
		return Input{}, false
	}
	input.Thumbnail = &img

	return input, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
