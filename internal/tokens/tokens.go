package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/movieservice/auth-service/internal/apperr"
)

// Kind distinguishes access tokens from refresh tokens. It travels in the
// "type" claim.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrInvalid is returned for any token that fails verification: bad
// signature, wrong algorithm, malformed, expired, missing subject or
// unexpected kind. It wraps apperr.ErrUnauthenticated.
var ErrInvalid = fmt.Errorf("invalid token: %w", apperr.ErrUnauthenticated)

// Claims is the JWT payload: sub, exp, jti and the token kind.
type Claims struct {
	Kind Kind `json:"type"`
	jwt.RegisteredClaims
}

// Subject is the verified content of a token.
type Subject struct {
	UserID    string
	Kind      Kind
	ID        string
	ExpiresAt time.Time
}

// Pair is an access token and refresh token issued together.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service signs and verifies HS256 tokens with one shared secret.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService returns a Service using the wall clock.
func NewService(secret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for issuing and validating.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue signs a token of the given kind for subject, valid for ttl. The
// returned time is the exp claim, truncated to whole seconds.
func (s *Service) Issue(subject string, kind Kind, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("tokens: empty subject")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", time.Time{}, fmt.Errorf("tokens: unknown kind %q", kind)
	}
	exp := jwt.NewNumericDate(s.now().Add(ttl))
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokens: sign: %w", err)
	}
	return signed, exp.Time.UTC(), nil
}

// IssuePair issues an access token and a refresh token for subject using
// the configured lifetimes.
func (s *Service) IssuePair(subject string) (*Pair, error) {
	access, accessExp, err := s.Issue(subject, KindAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.Issue(subject, KindRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks signature, algorithm and expiry. A token is valid strictly
// before its exp instant.
func (s *Service) Verify(raw string) (*Subject, error) {
	return s.parse(raw, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
}

// VerifyKind is Verify plus a check that the token is of the expected kind.
func (s *Service) VerifyKind(raw string, expected Kind) (*Subject, error) {
	sub, err := s.Verify(raw)
	if err != nil {
		return nil, err
	}
	if sub.Kind != expected {
		return nil, ErrInvalid
	}
	return sub, nil
}

// DecodeUnverifiedExpiry returns the exp claim of a correctly signed token
// without rejecting it for being expired.
func (s *Service) DecodeUnverifiedExpiry(raw string) (time.Time, error) {
	sub, err := s.parse(raw, jwt.WithoutClaimsValidation())
	if err != nil {
		return time.Time{}, err
	}
	if sub.ExpiresAt.IsZero() {
		return time.Time{}, ErrInvalid
	}
	return sub.ExpiresAt, nil
}

func (s *Service) parse(raw string, opts ...jwt.ParserOption) (*Subject, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}
	sub := &Subject{UserID: claims.Subject, Kind: claims.Kind, ID: claims.ID}
	if claims.ExpiresAt != nil {
		sub.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return sub, nil
}
