// Package auth is the entry point for every authentication flow: password
// login, refresh rotation, logout, request authentication and OAuth login
// completion.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/movieservice/auth-service/internal/accounts"
	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
	"github.com/movieservice/auth-service/internal/oauth"
	"github.com/movieservice/auth-service/internal/sessions"
	"github.com/movieservice/auth-service/internal/tokens"
	"github.com/movieservice/auth-service/internal/users"
	"github.com/movieservice/auth-service/pkg/logger"
	"github.com/movieservice/auth-service/pkg/metrics"
)

const storeDown = "session store unavailable"

type Service struct {
	users     *users.Service
	tokens    *tokens.Service
	cache     sessions.Cache
	resolver  *accounts.Resolver
	providers oauth.Registry
	now       func() time.Time
}

func NewService(u *users.Service, t *tokens.Service, c sessions.Cache, r *accounts.Resolver, p oauth.Registry) *Service {
	if p == nil {
		p = oauth.Registry{}
	}
	return &Service{users: u, tokens: t, cache: c, resolver: r, providers: p, now: time.Now}
}

// WithClock replaces the time source used for blacklist lifetimes.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// issue creates a token pair for the user and makes its refresh token the
// user's current one.
func (s *Service) issue(ctx context.Context, userID string) (*tokens.Pair, error) {
	pair, err := s.tokens.IssuePair(userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.StoreRefresh(ctx, userID, pair.RefreshToken, s.tokens.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", apperr.Unavailable(err, storeDown))
	}
	return pair, nil
}

// Login checks username and password. Unknown user, wrong password and
// inactive account all return the same apperr.ErrUnauthenticated.
func (s *Service) Login(ctx context.Context, username, password string) (*tokens.Pair, error) {
	u, err := s.users.Authenticate(ctx, username, password)
	if err == nil && !u.IsActive {
		err = apperr.ErrUnauthenticated
	}
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthenticated) {
			metrics.LoginTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
			logger.With("username", username).Infof("password login rejected")
		} else {
			metrics.LoginTotal.WithLabelValues(metrics.OutcomeError).Inc()
		}
		return nil, err
	}

	pair, err := s.issue(ctx, u.ID)
	if err != nil {
		metrics.LoginTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	metrics.LoginTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	logger.With("user_id", u.ID).Infof("password login")
	return pair, nil
}

// Refresh rotates a refresh token. The presented token must be a valid
// refresh token and byte-identical to the one currently cached for its
// subject; any earlier token of the same user is rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	switch {
	case err == nil:
		metrics.RefreshTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	case errors.Is(err, apperr.ErrUnauthenticated):
		metrics.RefreshTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
	default:
		metrics.RefreshTotal.WithLabelValues(metrics.OutcomeError).Inc()
	}
	return pair, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	sub, err := s.tokens.VerifyKind(refreshToken, tokens.KindRefresh)
	if err != nil {
		return nil, err
	}

	stored, err := s.cache.FetchRefresh(ctx, sub.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch refresh token: %w", apperr.Unavailable(err, storeDown))
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		logger.With("user_id", sub.UserID).Warnf("refresh token is not the current one")
		return nil, apperr.ErrUnauthenticated
	}

	u, err := s.users.Repository().GetByID(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.IsActive {
		return nil, apperr.ErrUnauthenticated
	}

	if err := s.cache.DropRefresh(ctx, sub.UserID); err != nil {
		return nil, fmt.Errorf("drop refresh token: %w", apperr.Unavailable(err, storeDown))
	}
	return s.issue(ctx, u.ID)
}

// Logout drops the user's refresh token and blacklists the access token
// for the rest of its lifetime. Only a failed blacklist insert is reported.
func (s *Service) Logout(ctx context.Context, userID, accessToken string) error {
	log := logger.With("user_id", userID)
	if err := s.cache.DropRefresh(ctx, userID); err != nil {
		log.Errorf("logout: drop refresh token: %v", err)
	}

	exp, err := s.tokens.DecodeUnverifiedExpiry(accessToken)
	if err != nil {
		metrics.LogoutTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return err
	}
	if err := s.cache.RevokeAccess(ctx, accessToken, exp.Sub(s.now())); err != nil {
		metrics.LogoutTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("blacklist access token: %w", apperr.Unavailable(err, storeDown))
	}
	metrics.LogoutTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Infof("logout")
	return nil
}

// Authenticate validates an access token presented on a request: it must
// verify, be of kind access and not be blacklisted.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*tokens.Subject, error) {
	sub, err := s.tokens.VerifyKind(accessToken, tokens.KindAccess)
	if err != nil {
		return nil, err
	}
	revoked, err := s.cache.IsRevoked(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("check blacklist: %w", apperr.Unavailable(err, storeDown))
	}
	if revoked {
		metrics.BlacklistHits.Inc()
		return nil, apperr.ErrUnauthenticated
	}
	return sub, nil
}

// CurrentUser loads the user behind an authenticated subject.
func (s *Service) CurrentUser(ctx context.Context, sub *tokens.Subject) (*models.User, error) {
	u, err := s.users.GetByID(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, apperr.ErrInactive
	}
	return u, nil
}

// OAuthLoginURL returns the provider consent URL carrying state.
func (s *Service) OAuthLoginURL(provider, state string) (string, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// Provider reports whether name is a configured provider.
func (s *Service) Provider(name string) error {
	_, err := s.providers.Get(name)
	return err
}

// OAuthLogin is the result of a completed provider login.
type OAuthLogin struct {
	User  *models.User
	Pair  *tokens.Pair
	IsNew bool
}

// CompleteOAuth exchanges the authorization code, resolves the external
// identity to a user and issues a token pair for it.
func (s *Service) CompleteOAuth(ctx context.Context, provider, code string) (*OAuthLogin, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return nil, err
	}
	name := string(p.Name())
	res, err := s.completeOAuth(ctx, p, code)
	switch {
	case err == nil:
		metrics.OAuthLoginTotal.WithLabelValues(name, metrics.OutcomeSuccess).Inc()
	case errors.Is(err, apperr.ErrConflict):
		metrics.OAuthLoginTotal.WithLabelValues(name, metrics.OutcomeConflict).Inc()
	case errors.Is(err, apperr.ErrUpstream), errors.Is(err, apperr.ErrUnauthenticated):
		metrics.OAuthLoginTotal.WithLabelValues(name, metrics.OutcomeFailure).Inc()
	default:
		metrics.OAuthLoginTotal.WithLabelValues(name, metrics.OutcomeError).Inc()
	}
	return res, err
}

func (s *Service) completeOAuth(ctx context.Context, p oauth.Provider, code string) (*OAuthLogin, error) {
	if code == "" {
		return nil, apperr.Invalid("missing authorization code")
	}
	identity, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	u, created, err := s.resolver.ResolveWithStatus(ctx, *identity)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, apperr.ErrInactive
	}
	pair, err := s.issue(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	logger.With("user_id", u.ID, "provider", p.Name(), "new_user", created).Infof("oauth login")
	return &OAuthLogin{User: u, Pair: pair, IsNew: created}, nil
}
