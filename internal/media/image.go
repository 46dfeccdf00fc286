package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
)

const maxUploadSizeBytes = 10 << 20

type ImageKind string

const (
	KindProjectThumbnail ImageKind = "project-thumbnail"
	KindProfile          ImageKind = "profile"
	KindGeneral          ImageKind = "general"
)

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrFileTooLarge = errors.New("file is too large")
	ErrNotImage     = errors.New("file must be an image")
)

// Image is an uploaded file held in memory until it is handed to a store.
type Image struct {
	Kind        ImageKind
	Filename    string
	ContentType string
	Data        []byte
}

// ImageStore persists images and returns the public URI they are served from.
type ImageStore interface {
	Upload(ctx context.Context, img Image) (string, error)
	Delete(ctx context.Context, uri string) error
}

// ReadImage loads a multipart file part and checks that it is a non-empty image.
func ReadImage(kind ImageKind, file multipart.File, header *multipart.FileHeader) (Image, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return Image{}, ErrEmptyFile
	}
	if len(data) > maxUploadSizeBytes {
		return Image{}, ErrFileTooLarge
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return Image{}, ErrNotImage
	}

	return Image{
		Kind:        kind,
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// objectName builds a collision-free storage name that keeps the original extension.
func objectName(kind ImageKind, filename string) string {
	if kind == "" {
		kind = KindGeneral
	}
	return string(kind) + "/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
}

// BaseName returns the file name component of a stored image URI.
func BaseName(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	return path.Base(uri)
}
