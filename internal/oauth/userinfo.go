package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

const maxUserInfoBytes = 1 << 20

// UserInfoProvider fetches the profile from a userinfo endpoint with the
// exchanged access token.
type UserInfoProvider struct {
	name        string
	config      oauth2.Config
	userInfoURL string
}

func NewUserInfoProvider(name string, cfg oauth2.Config, userInfoURL string) *UserInfoProvider {
	return &UserInfoProvider{name: name, config: cfg, userInfoURL: userInfoURL}
}

func (p *UserInfoProvider) Name() string {
	return p.name
}

func (p *UserInfoProvider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (p *UserInfoProvider) Authenticate(ctx context.Context, code, verifier string) (map[string]any, error) {
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var attrs map[string]any
	if err := decoder.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return attrs, nil
}
