package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/movieservice/auth-service/internal/models"
)

// Repository is the credential store. Lookups return (nil, nil) when the
// record does not exist. Writes that collide with a unique constraint
// return an error wrapping apperr.ErrDuplicateIdentity.
type Repository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, u *models.User) error

	// CreateWithOAuthAccount stores a new user and its first provider link
	// as one unit: either both exist afterwards or neither does.
	CreateWithOAuthAccount(ctx context.Context, u *models.User, acc *models.OAuthAccount) error
	CreateOAuthAccount(ctx context.Context, acc *models.OAuthAccount) error
	FindOAuthAccount(ctx context.Context, provider models.Provider, providerUserID string) (*models.OAuthAccount, error)
	ListOAuthAccounts(ctx context.Context, userID string) ([]*models.OAuthAccount, error)
	UpdateOAuthTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error

	Ping(ctx context.Context) error
}

// NormalizeEmail lower-cases and trims an address so uniqueness does not
// depend on how the provider or the user typed it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareUser(u *models.User, now time.Time) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}

func prepareAccount(acc *models.OAuthAccount, now time.Time) {
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now
}
