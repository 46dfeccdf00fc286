package project

import (
	"errors"
	"time"

	"spadeworker/internal/media"
)

var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrDuplicateLike      = errors.New("project already liked")
	ErrLikeNotFound       = errors.New("project like not found")
	ErrDuplicateSubscribe = errors.New("project already subscribed")
	ErrSubscribeNotFound  = errors.New("project subscription not found")
	ErrInvalidOwner       = errors.New("not the project owner")
	ErrInvalidInput       = errors.New("invalid project input")
)

type Project struct {
	ID                int64     `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	ThumbnailImageURI string    `json:"thumbnailImageUri"`
	OwnerID           string    `json:"ownerId"`
	LikeCount         int64     `json:"likeCount"`
	SubscribeCount    int64     `json:"subscribeCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Input is a create or update request. A nil Thumbnail means no file was sent.
type Input struct {
	Title       string
	Description string
	Thumbnail   *media.Image
}
