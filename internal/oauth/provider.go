package oauth

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"spadeworker/internal/config"
)

const googleIssuer = "https://accounts.google.com"

// CallbackPath is the route prefix the identity providers redirect back to.
const CallbackPath = "/login/oauth2/code/"

// Provider runs the authorization-code grant against one identity provider
// and returns the raw user attributes it reports.
type Provider interface {
	Name() string
	AuthCodeURL(state, verifier string) string
	Authenticate(ctx context.Context, code, verifier string) (map[string]any, error)
}

var (
	naverEndpoint = oauth2.Endpoint{
		AuthURL:   "https://nid.naver.com/oauth2.0/authorize",
		TokenURL:  "https://nid.naver.com/oauth2.0/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	kakaoEndpoint = oauth2.Endpoint{
		AuthURL:   "https://kauth.kakao.com/oauth/authorize",
		TokenURL:  "https://kauth.kakao.com/oauth/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
)

const (
	githubUserInfoURL = "https://api.github.com/user"
	naverUserInfoURL  = "https://openapi.naver.com/v1/nid/me"
	kakaoUserInfoURL  = "https://kapi.kakao.com/v2/user/me"
)

// NewProviders builds a provider for every registration that has a client id.
// Google is discovered through its OIDC issuer, so this call can reach the network.
func NewProviders(ctx context.Context, cfg config.OAuth2Config) (map[string]Provider, error) {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	providers := make(map[string]Provider, len(names))
	for _, name := range names {
		creds := cfg.Providers[name]
		if creds.ClientID == "" {
			continue
		}

		oc := oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  cfg.CallbackBaseURL + CallbackPath + name,
		}

		var (
			p   Provider
			err error
		)
		switch name {
		case "google":
			oc.Scopes = []string{"openid", "profile", "email"}
			p, err = NewOIDCProvider(ctx, name, googleIssuer, oc)
		case "github":
			oc.Endpoint = github.Endpoint
			oc.Scopes = []string{"read:user", "user:email"}
			p = NewUserInfoProvider(name, oc, githubUserInfoURL)
		case "naver":
			oc.Endpoint = naverEndpoint
			p = NewUserInfoProvider(name, oc, naverUserInfoURL)
		case "kakao":
			oc.Endpoint = kakaoEndpoint
			oc.Scopes = []string{"profile_nickname", "profile_image", "account_email"}
			p = NewUserInfoProvider(name, oc, kakaoUserInfoURL)
		default:
			return nil, fmt.Errorf("unknown oauth2 provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("configure %s provider: %w", name, err)
		}
		providers[name] = p
	}

	return providers, nil
}
