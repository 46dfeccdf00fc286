package user

import (
	"errors"
	"time"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID              string    `json:"id"`
	PersonalID      string    `json:"personalId"`
	Provider        string    `json:"provider"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	ProfileImageURL string    `json:"profileImageUrl"`
	Role            string    `json:"role"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Registration is the upstream profile written on every login.
type Registration struct {
	PersonalID      string
	Provider        string
	Name            string
	Email           string
	ProfileImageURL string
}
