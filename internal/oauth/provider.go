// Package oauth talks to the external identity providers: it builds the
// consent URL, exchanges the authorization code and reads the profile.
package oauth

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
)

// Provider is one identity provider.
type Provider interface {
	Name() models.Provider
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for the provider's view of the
	// user. Failures wrap apperr.ErrUpstream.
	Exchange(ctx context.Context, code string) (*models.ExternalIdentity, error)
}

// Config is the client registration at a provider. The URL fields are
// optional and exist so tests can point the client at a local server.
type Config struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URI"`

	AuthURL     string `env:"AUTH_URL"`
	TokenURL    string `env:"TOKEN_URL"`
	UserInfoURL string `env:"USERINFO_URL"`

	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether the provider has client credentials.
func (c Config) Enabled() bool {
	return c.ClientID != ""
}

func (c Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) oauth2Config(defaults oauth2.Endpoint, scopes ...string) *oauth2.Config {
	ep := defaults
	if c.AuthURL != "" {
		ep.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		ep.TokenURL = c.TokenURL
	}
	if ep.AuthStyle == oauth2.AuthStyleAutoDetect {
		ep.AuthStyle = oauth2.AuthStyleInParams
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     ep,
		Scopes:       scopes,
	}
}

func expiryOf(tok *oauth2.Token) *time.Time {
	if tok.Expiry.IsZero() {
		return nil
	}
	t := tok.Expiry.UTC()
	return &t
}

// Registry holds the enabled providers by name.
type Registry map[models.Provider]Provider

func NewRegistry(providers ...Provider) Registry {
	r := Registry{}
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

// Get returns the named provider or an apperr.ErrNotFound error.
func (r Registry) Get(name string) (Provider, error) {
	p, err := models.ParseProvider(name)
	if err != nil {
		return nil, apperr.NotFound("unknown oauth provider %q", name)
	}
	prov, ok := r[p]
	if !ok {
		return nil, apperr.NotFound("oauth provider %q is not configured", name)
	}
	return prov, nil
}
