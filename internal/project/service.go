package project

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"spadeworker/internal/media"
	"spadeworker/internal/observability"
	"spadeworker/internal/user"
)

type Store interface {
	List(ctx context.Context) ([]Project, error)
	Get(ctx context.Context, id int64) (Project, error)
	Create(ctx context.Context, p Project) (Project, error)
	Update(ctx context.Context, p Project) (Project, error)
	Delete(ctx context.Context, id int64) error
	AddLike(ctx context.Context, projectID int64, userID string) error
	RemoveLike(ctx context.Context, projectID int64, userID string) error
	AddSubscribe(ctx context.Context, projectID int64, userID string) error
	RemoveSubscribe(ctx context.Context, projectID int64, userID string) error
}

// UserLookup resolves the user row behind a token subject.
type UserLookup interface {
	GetByPersonalID(ctx context.Context, personalID string) (user.User, error)
}

// DefaultThumbnail is the placeholder image projects fall back to. A request
// file named Name selects it without uploading anything.
type DefaultThumbnail struct {
	Name string
	URI  string
}

type Service struct {
	store     Store
	users     UserLookup
	images    media.ImageStore
	thumbnail DefaultThumbnail
	logger    *observability.Logger
}

func NewService(store Store, users UserLookup, images media.ImageStore, thumbnail DefaultThumbnail, logger *observability.Logger) *Service {
	return &Service{store: store, users: users, images: images, thumbnail: thumbnail, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Project, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, personalID string, in Input) (Project, error) {
	in, err := normalize(in)
	if err != nil {
		return Project{}, err
	}

	owner, err := s.users.GetByPersonalID(ctx, personalID)
	if err != nil {
		return Project{}, err
	}

	uri := s.thumbnail.URI
	if in.Thumbnail != nil && in.Thumbnail.Filename != s.thumbnail.Name {
		uri, err = s.upload(ctx, in.Thumbnail)
		if err != nil {
			return Project{}, err
		}
	}

	created, err := s.store.Create(ctx, Project{
		Title:             in.Title,
		Description:       in.Description,
		ThumbnailImageURI: uri,
		OwnerID:           owner.ID,
	})
	if err != nil {
		s.discardImage(ctx, uri)
		return Project{}, err
	}
	return created, nil
}

func (s *Service) Update(ctx context.Context, personalID string, id int64, in Input) (Project, error) {
	in, err := normalize(in)
	if err != nil {
		return Project{}, err
	}

	saved, err := s.owned(ctx, personalID, id)
	if err != nil {
		return Project{}, err
	}

	previousURI := saved.ThumbnailImageURI
	uri, err := s.replaceThumbnail(ctx, previousURI, in.Thumbnail)
	if err != nil {
		return Project{}, err
	}

	saved.Title = in.Title
	saved.Description = in.Description
	saved.ThumbnailImageURI = uri
	updated, err := s.store.Update(ctx, saved)
	if err != nil {
		if uri != previousURI {
			s.discardImage(ctx, uri)
		}
		return Project{}, err
	}

	// The previous image is only dropped once no row points at it.
	if uri != previousURI {
		s.discardImage(ctx, previousURI)
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, personalID string, id int64) error {
	saved, err := s.owned(ctx, personalID, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.discardImage(ctx, saved.ThumbnailImageURI)
	return nil
}

func (s *Service) Like(ctx context.Context, personalID string, id int64) error {
	userID, err := s.relationTarget(ctx, personalID, id)
	if err != nil {
		return err
	}
	return s.store.AddLike(ctx, id, userID)
}

func (s *Service) CancelLike(ctx context.Context, personalID string, id int64) error {
	userID, err := s.relationTarget(ctx, personalID, id)
	if err != nil {
		return err
	}
	return s.store.RemoveLike(ctx, id, userID)
}

func (s *Service) Subscribe(ctx context.Context, personalID string, id int64) error {
	userID, err := s.relationTarget(ctx, personalID, id)
	if err != nil {
		return err
	}
	return s.store.AddSubscribe(ctx, id, userID)
}

func (s *Service) CancelSubscribe(ctx context.Context, personalID string, id int64) error {
	userID, err := s.relationTarget(ctx, personalID, id)
	if err != nil {
		return err
	}
	return s.store.RemoveSubscribe(ctx, id, userID)
}

// replaceThumbnail decides the URI an update stores, uploading a new file
// when needed. It never deletes anything; Update drops the previous image
// after the row is written.
//   - no file keeps the saved image;
//   - the default name resets to the placeholder URI;
//   - any other name different from the saved one is uploaded.
func (s *Service) replaceThumbnail(ctx context.Context, savedURI string, file *media.Image) (string, error) {
	if file == nil {
		return savedURI, nil
	}

	// The placeholder is matched by full URI; an upload that happens to share
	// its file name is still an upload.
	if file.Filename == s.thumbnail.Name {
		return s.thumbnail.URI, nil
	}

	if savedURI != s.thumbnail.URI && file.Filename == media.BaseName(savedURI) {
		return savedURI, nil
	}

	return s.upload(ctx, file)
}

func (s *Service) upload(ctx context.Context, img *media.Image) (string, error) {
	if s.images == nil {
		return "", fmt.Errorf("upload thumbnail: image store is not configured")
	}
	img.Kind = media.KindProjectThumbnail
	uri, err := s.images.Upload(ctx, *img)
	if err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}
	return uri, nil
}

// discardImage removes an image no row references anymore. Failures are
// reported and leave an orphaned object; the request has already succeeded
// or failed on its own.
func (s *Service) discardImage(ctx context.Context, uri string) {
	if uri == "" || uri == s.thumbnail.URI || s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, uri); err != nil {
		observability.CaptureError(s.logger, "project_thumbnail_delete_failed", fmt.Errorf("delete thumbnail: %w", err), map[string]any{
			"uri": uri,
		})
	}
}

func (s *Service) owned(ctx context.Context, personalID string, id int64) (Project, error) {
	saved, err := s.store.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}

	owner, err := s.users.GetByPersonalID(ctx, personalID)
	if err != nil {
		return Project{}, err
	}
	if saved.OwnerID != owner.ID {
		return Project{}, ErrInvalidOwner
	}

	return saved, nil
}

func (s *Service) relationTarget(ctx context.Context, personalID string, id int64) (string, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return "", err
	}
	u, err := s.users.GetByPersonalID(ctx, personalID)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func normalize(in Input) (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Title == "" {
		return Input{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !utf8.ValidString(in.Title) || utf8.RuneCountInString(in.Title) > 150 {
		return Input{}, fmt.Errorf("%w: title is invalid", ErrInvalidInput)
	}
	if !utf8.ValidString(in.Description) || utf8.RuneCountInString(in.Description) > 1000 {
		return Input{}, fmt.Errorf("%w: description is invalid", ErrInvalidInput)
	}

	return in, nil
}
