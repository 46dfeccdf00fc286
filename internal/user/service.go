package user

import (
	"context"
	"fmt"

	"spadeworker/internal/auth"
)

type Store interface {
	Upsert(ctx context.Context, reg Registration) (User, error)
	GetByPersonalID(ctx context.Context, personalID string) (User, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register normalizes the upstream attributes and stores the user. The
// returned authorities are what the session tokens will carry.
func (s *Service) Register(ctx context.Context, provider string, attrs map[string]any) ([]string, error) {
	providerType, err := auth.ParseProviderType(provider)
	if err != nil {
		return nil, err
	}
	info, err := auth.NewOAuth2UserInfo(providerType, attrs)
	if err != nil {
		return nil, err
	}

	u, err := s.store.Upsert(ctx, Registration{
		PersonalID:      info.PersonalID(),
		Provider:        string(providerType),
		Name:            info.Name,
		Email:           info.Email,
		ProfileImageURL: info.ImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	return []string{u.Role}, nil
}

// Current resolves the user behind the request identity.
func (s *Service) Current(ctx context.Context) (User, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return User{}, auth.ErrRequestTokenNotFound
	}
	return s.store.GetByPersonalID(ctx, identity.Subject)
}
