package auth

import (
	"context"
	"time"
)

// UserRefreshToken is the currently trusted refresh token of one identity.
type UserRefreshToken struct {
	ID         string
	PersonalID string
	TokenValue string
	ExpiresAt  time.Time
	UpdatedAt  time.Time
}

// RefreshTokenStore persists at most one live refresh token per personal id.
// Lookups return ErrRefreshTokenNotFound when no matching row exists.
type RefreshTokenStore interface {
	FindByPersonalID(ctx context.Context, personalID string) (UserRefreshToken, error)
	FindByPersonalIDAndTokenValue(ctx context.Context, personalID, tokenValue string) (UserRefreshToken, error)
	// SaveOrUpdate replaces the stored value for token.PersonalID or inserts a new row.
	SaveOrUpdate(ctx context.Context, token UserRefreshToken) error
	// DeleteAllByPersonalID is idempotent.
	DeleteAllByPersonalID(ctx context.Context, personalID string) error
	ExistsByPersonalID(ctx context.Context, personalID string) (bool, error)
}

// Principal is the authenticated result handed over by the OAuth2 collaborator.
type Principal struct {
	Provider    string
	Attributes  map[string]any
	Authorities []string
}

// Metrics receives token lifecycle events.
type Metrics interface {
	TokenIssued(kind string)
	Reissue(result string)
}

type nopMetrics struct{}

func (nopMetrics) TokenIssued(string) {}
func (nopMetrics) Reissue(string)     {}
