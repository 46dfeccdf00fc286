package media

import (
	"encoding/json"
	"errors"
	"net/http"

	"spadeworker/internal/observability"
)

type UploadHandler struct {
	store  ImageStore
	logger *observability.Logger
}

func NewUploadHandler(store ImageStore, logger *observability.Logger) *UploadHandler {
	return &UploadHandler{store: store, logger: logger}
}

func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusInternalServerError, "image store is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSizeBytes+(1<<20))
	if err := r.ParseMultipartForm(maxUploadSizeBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	img, err := ReadImage(ImageKind(r.FormValue("kind")), file, header)
	if err != nil {
		WriteUploadError(w, err)
		return
	}

	uri, err := h.store.Upload(r.Context(), img)
	if err != nil {
		observability.CaptureError(h.logger, "image_upload_failed", err, map[string]any{"filename": img.Filename})
		writeError(w, http.StatusBadGateway, "failed to upload image")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"uri": uri})
}

// WriteUploadError renders a ReadImage failure.
func WriteUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyFile), errors.Is(err, ErrNotImage):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		writeError(w, http.StatusBadRequest, "failed to read file")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
