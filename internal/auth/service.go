package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// TokenPair is one access token and its companion refresh token.
type TokenPair struct {
	Access  AuthToken
	Refresh AuthToken
}

type Service struct {
	codec   *Codec
	store   RefreshTokenStore
	metrics Metrics
}

func NewService(codec *Codec, store RefreshTokenStore, metrics Metrics) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{codec: codec, store: store, metrics: metrics}
}

func (s *Service) Codec() *Codec {
	return s.codec
}

// Reissue exchanges an access token (expired or not) and the matching stored
// refresh token for a new pair. The stored refresh token is rotated, so the
// presented one cannot be used again.
func (s *Service) Reissue(ctx context.Context, accessToken, refreshToken string) (TokenPair, error) {
	pair, err := s.reissue(ctx, accessToken, refreshToken)
	if err != nil {
		s.metrics.Reissue("rejected")
		return TokenPair{}, err
	}
	s.metrics.Reissue("rotated")
	return pair, nil
}

func (s *Service) reissue(ctx context.Context, accessToken, refreshToken string) (TokenPair, error) {
	if accessToken == "" {
		return TokenPair{}, ErrRequestTokenNotFound
	}

	access, err := s.codec.Validate(accessToken)
	if err != nil {
		return TokenPair{}, err
	}
	if access.Kind != TokenKindAccess {
		return TokenPair{}, fmt.Errorf("%w: access token required", ErrInvalidToken)
	}

	if refreshToken == "" {
		return TokenPair{}, fmt.Errorf("%w: refresh token missing", ErrInvalidToken)
	}
	refresh, err := s.codec.Validate(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if refresh.Kind != TokenKindRefresh || refresh.Expired || refresh.Subject != access.Subject {
		return TokenPair{}, fmt.Errorf("%w: refresh token does not belong to access token", ErrInvalidToken)
	}

	if _, err := s.store.FindByPersonalIDAndTokenValue(ctx, access.Subject, refreshToken); err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return TokenPair{}, err
	}

	pair, err := issuePair(s.codec, s.metrics, access.Subject, access.Authorities)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.store.SaveOrUpdate(ctx, UserRefreshToken{
		PersonalID: access.Subject,
		TokenValue: pair.Refresh.Value,
		ExpiresAt:  pair.Refresh.ExpiresAt,
	}); err != nil {
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return pair, nil
}

// Logout drops the stored refresh token of subject. Logging out twice is not
// an error.
func (s *Service) Logout(ctx context.Context, subject string) error {
	if subject == "" {
		return ErrRequestTokenNotFound
	}
	if err := s.store.DeleteAllByPersonalID(ctx, subject); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func issuePair(codec *Codec, metrics Metrics, subject string, authorities []string) (TokenPair, error) {
	access, err := codec.IssueAccessToken(subject, authorities)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := codec.IssueRefreshToken(subject, authorities)
	if err != nil {
		return TokenPair{}, err
	}

	metrics.TokenIssued(string(TokenKindAccess))
	metrics.TokenIssued(string(TokenKindRefresh))
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// setRefreshCookie deletes a stale refresh cookie before writing the new one.
func setRefreshCookie(w http.ResponseWriter, r *http.Request, cookies CookieJar, value string, ttl time.Duration) {
	cookies.Clear(w, r, RefreshTokenCookieName)
	cookies.Set(w, RefreshTokenCookieName, value, int(ttl/time.Second))
}
