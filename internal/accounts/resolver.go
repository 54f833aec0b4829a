// Package accounts maps external identities onto local users.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/events"
	"github.com/movieservice/auth-service/internal/models"
	"github.com/movieservice/auth-service/internal/users"
	"github.com/movieservice/auth-service/pkg/logger"
)

// Resolver returns exactly one user for an external identity, creating
// the user and link when needed. An email already owned by an account
// linked to a different provider is never merged silently.
type Resolver struct {
	repo   users.Repository
	events events.Publisher
}

func NewResolver(repo users.Repository, pub events.Publisher) *Resolver {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Resolver{repo: repo, events: pub}
}

// Resolve applies the rules in order, first match wins:
//  1. a link for (provider, provider user id) exists: its user
//  2. no email asserted: a new user and link
//  3. no user owns the email: a new user and link
//  4. the owner is linked to another provider: apperr.ErrConflict
//  5. otherwise: link the identity to the owner
func (r *Resolver) Resolve(ctx context.Context, id models.ExternalIdentity) (*models.User, error) {
	u, _, err := r.ResolveWithStatus(ctx, id)
	return u, err
}

// ResolveWithStatus is Resolve that also reports whether a new user was
// created.
func (r *Resolver) ResolveWithStatus(ctx context.Context, id models.ExternalIdentity) (*models.User, bool, error) {
	if id.ProviderUserID == "" {
		return nil, false, apperr.Upstream(nil, "%s did not return a user id", id.Provider)
	}
	id.Email = users.NormalizeEmail(id.Email)
	log := logger.With("provider", id.Provider, "provider_user_id", id.ProviderUserID)

	if u, err := r.fromLink(ctx, id); err != nil || u != nil {
		return u, false, err
	}

	if id.Email == "" {
		return r.createUser(ctx, id)
	}

	owner, err := r.repo.GetByEmail(ctx, id.Email)
	if err != nil {
		return nil, false, err
	}
	if owner == nil {
		return r.createUser(ctx, id)
	}

	linked, err := r.repo.ListOAuthAccounts(ctx, owner.ID)
	if err != nil {
		return nil, false, err
	}
	for _, acc := range linked {
		if acc.Provider != id.Provider {
			log.With("user_id", owner.ID, "linked_provider", acc.Provider).Warnf("email already linked to another provider")
			return nil, false, apperr.Conflict("The email %s is already registered with a %s account. Sign in with %s or use a different email.",
				id.Email, acc.Provider, acc.Provider)
		}
	}

	acc := accountFor(id)
	acc.UserID = owner.ID
	if err := r.repo.CreateOAuthAccount(ctx, acc); err != nil {
		if errors.Is(err, apperr.ErrDuplicateIdentity) {
			// lost a race with a concurrent login of the same identity
			if u, ferr := r.fromLink(ctx, id); ferr == nil && u != nil {
				return u, false, nil
			}
		}
		return nil, false, fmt.Errorf("link %s account: %w", id.Provider, err)
	}
	log.With("user_id", owner.ID).Infof("linked external identity to existing user")
	r.publish(ctx, events.TypeAccountLinked, owner.ID, id)
	return owner, false, nil
}

// fromLink returns the user already linked to id, refreshing the cached
// provider tokens on the way. (nil, nil) means no link exists.
func (r *Resolver) fromLink(ctx context.Context, id models.ExternalIdentity) (*models.User, error) {
	acc, err := r.repo.FindOAuthAccount(ctx, id.Provider, id.ProviderUserID)
	if err != nil || acc == nil {
		return nil, err
	}
	u, err := r.repo.GetByID(ctx, acc.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	if id.AccessToken != "" {
		refresh := id.RefreshToken
		if refresh == "" {
			refresh = acc.RefreshToken
		}
		if err := r.repo.UpdateOAuthTokens(ctx, acc.ID, id.AccessToken, refresh, id.ExpiresAt); err != nil {
			logger.With("user_id", u.ID, "provider", id.Provider).Warnf("cache provider tokens: %v", err)
		}
	}
	return u, nil
}

func (r *Resolver) createUser(ctx context.Context, id models.ExternalIdentity) (*models.User, bool, error) {
	u := &models.User{
		Email:         id.Email,
		Username:      fmt.Sprintf("%s_%s", id.Provider, id.ProviderUserID),
		IsActive:      true,
		OAuthProvider: string(id.Provider),
		OAuthID:       id.ProviderUserID,
		Name:          id.Name,
		ProfileImage:  id.ProfileImage,
	}
	if err := r.repo.CreateWithOAuthAccount(ctx, u, accountFor(id)); err != nil {
		if errors.Is(err, apperr.ErrDuplicateIdentity) {
			if existing, ferr := r.fromLink(ctx, id); ferr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create user for %s account: %w", id.Provider, err)
	}
	logger.With("user_id", u.ID, "provider", id.Provider).Infof("created user from external identity")
	r.publish(ctx, events.TypeAccountCreated, u.ID, id)
	return u, true, nil
}

func accountFor(id models.ExternalIdentity) *models.OAuthAccount {
	return &models.OAuthAccount{
		Provider:       id.Provider,
		ProviderUserID: id.ProviderUserID,
		AccessToken:    id.AccessToken,
		RefreshToken:   id.RefreshToken,
		ExpiresAt:      id.ExpiresAt,
	}
}

func (r *Resolver) publish(ctx context.Context, typ, userID string, id models.ExternalIdentity) {
	err := r.events.Publish(ctx, events.Event{
		Type:     typ,
		UserID:   userID,
		Provider: string(id.Provider),
		Email:    id.Email,
	})
	if err != nil {
		logger.With("user_id", userID, "event", typ).Warnf("publish account event: %v", err)
	}
}
