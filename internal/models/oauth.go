package models

import (
	"fmt"
	"strings"
	"time"
)

// Provider names an external identity provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderKakao  Provider = "kakao"
)

// ParseProvider accepts a provider name in any case.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderKakao:
		return p, nil
	}
	return "", fmt.Errorf("unknown oauth provider %q", s)
}

func (p Provider) String() string { return string(p) }

// OAuthAccount links a User to one identity at one provider. The pair
// (Provider, ProviderUserID) is unique across all accounts.
type OAuthAccount struct {
	ID             int64      `bson:"_id" json:"id"`
	UserID         string     `bson:"userId" json:"user_id"`
	Provider       Provider   `bson:"provider" json:"provider"`
	ProviderUserID string     `bson:"providerUserId" json:"provider_user_id"`
	AccessToken    string     `bson:"accessToken,omitempty" json:"-"`
	RefreshToken   string     `bson:"refreshToken,omitempty" json:"-"`
	ExpiresAt      *time.Time `bson:"expiresAt,omitempty" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updatedAt" json:"updated_at"`
}

// ExternalIdentity is what a provider asserts about the person who just
// signed in, plus the provider tokens obtained during the code exchange.
type ExternalIdentity struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	Name           string
	ProfileImage   string

	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}
