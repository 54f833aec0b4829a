package oauth

import (
	"context"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
)

const (
	googleIssuer             = "https://accounts.google.com"
	defaultGoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Google implements Provider for Google sign-in. The profile comes from
// the OpenID Connect userinfo endpoint.
type Google struct {
	conf     *oauth2.Config
	provider *oidc.Provider
	client   *http.Client
}

func NewGoogle(ctx context.Context, cfg Config) *Google {
	conf := cfg.oauth2Config(google.Endpoint, oidc.ScopeOpenID, "email", "profile")
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultGoogleUserInfoURL
	}
	pc := &oidc.ProviderConfig{
		IssuerURL:   googleIssuer,
		AuthURL:     conf.Endpoint.AuthURL,
		TokenURL:    conf.Endpoint.TokenURL,
		UserInfoURL: userInfoURL,
	}
	return &Google{conf: conf, provider: pc.NewProvider(ctx), client: cfg.httpClient()}
}

func (g *Google) Name() models.Provider { return models.ProviderGoogle }

func (g *Google) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (g *Google) Exchange(ctx context.Context, code string) (*models.ExternalIdentity, error) {
	ctx = oidc.ClientContext(ctx, g.client)
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Upstream(err, "google token exchange failed")
	}

	info, err := g.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return nil, apperr.Upstream(err, "google userinfo request failed")
	}
	if info.Subject == "" {
		return nil, apperr.Upstream(nil, "google userinfo has no subject")
	}
	var extra struct {
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := info.Claims(&extra); err != nil {
		return nil, apperr.Upstream(err, "google userinfo is malformed")
	}

	return &models.ExternalIdentity{
		Provider:       models.ProviderGoogle,
		ProviderUserID: info.Subject,
		Email:          info.Email,
		Name:           extra.Name,
		ProfileImage:   extra.Picture,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		ExpiresAt:      expiryOf(tok),
	}, nil
}
