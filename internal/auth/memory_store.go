package auth

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ RefreshTokenStore = (*MemoryRefreshTokenStore)(nil)

// MemoryRefreshTokenStore keeps refresh tokens in process memory. It is meant
// for local development and tests; rows do not survive a restart.
type MemoryRefreshTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]UserRefreshToken
	now    func() time.Time
}

func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{
		tokens: make(map[string]UserRefreshToken),
		now:    time.Now,
	}
}

func (s *MemoryRefreshTokenStore) FindByPersonalID(_ context.Context, personalID string) (UserRefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[personalID]
	if !ok {
		return UserRefreshToken{}, ErrRefreshTokenNotFound
	}
	return token, nil
}

func (s *MemoryRefreshTokenStore) FindByPersonalIDAndTokenValue(ctx context.Context, personalID, tokenValue string) (UserRefreshToken, error) {
	token, err := s.FindByPersonalID(ctx, personalID)
	if err != nil {
		return UserRefreshToken{}, err
	}
	if subtle.ConstantTimeCompare([]byte(token.TokenValue), []byte(tokenValue)) != 1 {
		return UserRefreshToken{}, ErrRefreshTokenNotFound
	}
	return token, nil
}

func (s *MemoryRefreshTokenStore) SaveOrUpdate(_ context.Context, token UserRefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tokens[token.PersonalID]; ok {
		token.ID = existing.ID
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	token.UpdatedAt = s.now().UTC()
	s.tokens[token.PersonalID] = token
	return nil
}

func (s *MemoryRefreshTokenStore) DeleteAllByPersonalID(_ context.Context, personalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, personalID)
	return nil
}

func (s *MemoryRefreshTokenStore) ExistsByPersonalID(_ context.Context, personalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tokens[personalID]
	return ok, nil
}

func (s *MemoryRefreshTokenStore) DeleteExpired(_ context.Context, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deleted int64
	for personalID, token := range s.tokens {
		if batchSize > 0 && deleted >= int64(batchSize) {
			break
		}
		if token.ExpiresAt.Before(now) {
			delete(s.tokens, personalID)
			deleted++
		}
	}
	return deleted, nil
}
