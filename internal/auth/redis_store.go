package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ RefreshTokenStore = (*RedisRefreshTokenStore)(nil)

// RedisRefreshTokenStore keeps one key per personal id. Keys expire together
// with the refresh token they hold, so no cleanup job is needed.
type RedisRefreshTokenStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

type storedRefreshToken struct {
	ID         string    `json:"id"`
	TokenValue string    `json:"token_value"`
	ExpiresAt  time.Time `json:"expires_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewRedisRefreshTokenStore(client redis.UniversalClient, keyPrefix string) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func (s *RedisRefreshTokenStore) key(personalID string) string {
	return s.keyPrefix + "refresh_token:" + personalID
}

func (s *RedisRefreshTokenStore) FindByPersonalID(ctx context.Context, personalID string) (UserRefreshToken, error) {
	raw, err := s.client.Get(ctx, s.key(personalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return UserRefreshToken{}, ErrRefreshTokenNotFound
		}
		return UserRefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}

	var stored storedRefreshToken
	if err := json.Unmarshal(raw, &stored); err != nil {
		return UserRefreshToken{}, fmt.Errorf("decode refresh token: %w", err)
	}

	return UserRefreshToken{
		ID:         stored.ID,
		PersonalID: personalID,
		TokenValue: stored.TokenValue,
		ExpiresAt:  stored.ExpiresAt,
		UpdatedAt:  stored.UpdatedAt,
	}, nil
}

func (s *RedisRefreshTokenStore) FindByPersonalIDAndTokenValue(ctx context.Context, personalID, tokenValue string) (UserRefreshToken, error) {
	token, err := s.FindByPersonalID(ctx, personalID)
	if err != nil {
		return UserRefreshToken{}, err
	}
	if subtle.ConstantTimeCompare([]byte(token.TokenValue), []byte(tokenValue)) != 1 {
		return UserRefreshToken{}, ErrRefreshTokenNotFound
	}
	return token, nil
}

func (s *RedisRefreshTokenStore) SaveOrUpdate(ctx context.Context, token UserRefreshToken) error {
	now := s.now().UTC()
	ttl := token.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return s.DeleteAllByPersonalID(ctx, token.PersonalID)
	}

	if token.ID == "" {
		token.ID = uuid.NewString()
	}

	payload, err := json.Marshal(storedRefreshToken{
		ID:         token.ID,
		TokenValue: token.TokenValue,
		ExpiresAt:  token.ExpiresAt.UTC(),
		UpdatedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("encode refresh token: %w", err)
	}

	if err := s.client.Set(ctx, s.key(token.PersonalID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

func (s *RedisRefreshTokenStore) DeleteAllByPersonalID(ctx context.Context, personalID string) error {
	if err := s.client.Del(ctx, s.key(personalID)).Err(); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (s *RedisRefreshTokenStore) ExistsByPersonalID(ctx context.Context, personalID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(personalID)).Result()
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return n > 0, nil
}
