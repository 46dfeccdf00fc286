package auth

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ProviderType string

const (
	ProviderGoogle ProviderType = "GOOGLE"
	ProviderGitHub ProviderType = "GITHUB"
	ProviderNaver  ProviderType = "NAVER"
	ProviderKakao  ProviderType = "KAKAO"
)

// ParseProviderType maps a client registration id such as "google" to its
// provider type.
func ParseProviderType(registrationID string) (ProviderType, error) {
	switch p := ProviderType(strings.ToUpper(strings.TrimSpace(registrationID))); p {
	case ProviderGoogle, ProviderGitHub, ProviderNaver, ProviderKakao:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, registrationID)
	}
}

// OAuth2UserInfo is the provider-independent view of an upstream identity.
// ID is the raw upstream id, which is only unique within Provider.
type OAuth2UserInfo struct {
	Provider   ProviderType
	ID         string
	Name       string
	Email      string
	ImageURL   string
	Attributes map[string]any
}

func NewOAuth2UserInfo(provider ProviderType, attrs map[string]any) (OAuth2UserInfo, error) {
	info := OAuth2UserInfo{Provider: provider, Attributes: attrs}

	switch provider {
	case ProviderGoogle:
		info.ID = stringAttr(attrs, "sub")
		info.Name = stringAttr(attrs, "name")
		info.Email = stringAttr(attrs, "email")
		info.ImageURL = stringAttr(attrs, "picture")
	case ProviderGitHub:
		info.ID = stringAttr(attrs, "id")
		info.Name = stringAttr(attrs, "name")
		if info.Name == "" {
			info.Name = stringAttr(attrs, "login")
		}
		info.Email = stringAttr(attrs, "email")
		info.ImageURL = stringAttr(attrs, "avatar_url")
	case ProviderNaver:
		// Naver nests the profile under "response".
		response := mapAttr(attrs, "response")
		info.ID = stringAttr(response, "id")
		info.Name = stringAttr(response, "name")
		info.Email = stringAttr(response, "email")
		info.ImageURL = stringAttr(response, "profile_image")
	case ProviderKakao:
		properties := mapAttr(attrs, "properties")
		account := mapAttr(attrs, "kakao_account")
		info.ID = stringAttr(attrs, "id")
		info.Name = stringAttr(properties, "nickname")
		info.Email = stringAttr(account, "email")
		info.ImageURL = stringAttr(properties, "thumbnail_image")
	default:
		return OAuth2UserInfo{}, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}

	if info.ID == "" {
		return OAuth2UserInfo{}, fmt.Errorf("%w: missing %s user id", ErrInvalidUserInfo, strings.ToLower(string(provider)))
	}
	return info, nil
}

// PersonalID is the identity key used as token subject and storage key. The
// provider prefix keeps equal upstream ids from different providers apart.
func (i OAuth2UserInfo) PersonalID() string {
	return strings.ToLower(string(i.Provider)) + ":" + i.ID
}

func mapAttr(attrs map[string]any, key string) map[string]any {
	if attrs == nil {
		return nil
	}
	nested, _ := attrs[key].(map[string]any)
	return nested
}

func stringAttr(attrs map[string]any, key string) string {
	if attrs == nil {
		return ""
	}

	switch v := attrs[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}
