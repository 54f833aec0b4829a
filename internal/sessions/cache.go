package sessions

import (
	"context"
	"errors"
	"time"
)

// Cache keeps the single live refresh token per user and the blacklist of
// revoked access tokens. Implementations never store an entry without an
// expiry.
type Cache interface {
	// StoreRefresh replaces the user's refresh token.
	StoreRefresh(ctx context.Context, userID, token string, ttl time.Duration) error
	// FetchRefresh returns the stored token, or "" when there is none.
	FetchRefresh(ctx context.Context, userID string) (string, error)
	// DropRefresh removes the user's refresh token. Missing keys are not an error.
	DropRefresh(ctx context.Context, userID string) error
	// RevokeAccess blacklists an access token for ttl. A non-positive ttl
	// is a no-op: the token has already expired.
	RevokeAccess(ctx context.Context, token string, ttl time.Duration) error
	// IsRevoked reports whether the access token is blacklisted.
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Ping checks the backing store is reachable.
	Ping(ctx context.Context) error
}

var ErrInvalidTTL = errors.New("sessions: refresh ttl must be positive")

const (
	refreshPrefix   = "refresh_token:"
	blacklistPrefix = "blacklist:"
)

func refreshKey(userID string) string { return refreshPrefix + userID }
func blacklistKey(token string) string { return blacklistPrefix + token }
