package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
	"github.com/movieservice/auth-service/internal/passwords"
)

// Service encapsulates user-related business logic
type Service struct {
	repo   Repository
	hasher *passwords.Hasher

	dummyOnce   sync.Once
	dummyDigest string
}

func NewService(r Repository, h *passwords.Hasher) *Service {
	return &Service{repo: r, hasher: h}
}

// Repository exposes the underlying store for collaborators that work on
// provider links directly.
func (s *Service) Repository() Repository { return s.repo }

// Registration is the input for direct sign-up.
type Registration struct {
	Email    string
	Username string
	Password string
	Name     string
}

// Register creates a password user. Email and username must both be free.
func (s *Service) Register(ctx context.Context, in Registration) (*models.User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" {
		return nil, apperr.Invalid("username and password are required")
	}

	if in.Email != "" {
		existing, err := s.repo.GetByEmail(ctx, in.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperr.Duplicate("The user with this email already exists in the system.")
		}
	}
	existing, err := s.repo.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Duplicate("The user with this username already exists in the system.")
	}

	digest, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Email:          in.Email,
		Username:       in.Username,
		HashedPassword: digest,
		Name:           in.Name,
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrDuplicateIdentity) {
			return nil, apperr.Duplicate("The user with this email or username already exists in the system.")
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) hashPassword(plain string) (string, error) {
	digest, err := s.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, passwords.ErrTooLong) {
			return "", apperr.Invalid("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return digest, nil
}

// Authenticate returns the user whose username and password match. Unknown
// usernames, wrong passwords and password-less accounts all yield
// apperr.ErrUnauthenticated, and all of them pay for one bcrypt compare.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.HasPassword() {
		s.hasher.Verify(password, s.dummy())
		return nil, apperr.ErrUnauthenticated
	}
	if !s.hasher.Verify(password, u.HashedPassword) {
		return nil, apperr.ErrUnauthenticated
	}
	return u, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummyDigest
}

// GetByID returns the user or an apperr.ErrNotFound error.
func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// ProfileUpdate holds the fields a user may change about themselves. Nil
// fields are left untouched.
type ProfileUpdate struct {
	Email    *string
	Username *string
	Password *string
	Name     *string
}

// UpdateProfile applies upd to the user, keeping email and username unique.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		email := NormalizeEmail(*upd.Email)
		if email != "" && email != u.Email {
			other, err := s.repo.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if other != nil && other.ID != u.ID {
				return nil, apperr.Duplicate("The user with this email already exists in the system.")
			}
		}
		u.Email = email
	}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username == "" {
			return nil, apperr.Invalid("username must not be empty")
		}
		if username != u.Username {
			other, err := s.repo.GetByUsername(ctx, username)
			if err != nil {
				return nil, err
			}
			if other != nil && other.ID != u.ID {
				return nil, apperr.Duplicate("The user with this username already exists in the system.")
			}
		}
		u.Username = username
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return nil, apperr.Invalid("password must not be empty")
		}
		digest, err := s.hashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		u.HashedPassword = digest
	}
	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}

	if err := s.repo.Update(ctx, u); err != nil {
		if errors.Is(err, apperr.ErrDuplicateIdentity) {
			return nil, apperr.Duplicate("The user with this email or username already exists in the system.")
		}
		return nil, err
	}
	return u, nil
}

// SetProfileImage records a new avatar URL for the user.
func (s *Service) SetProfileImage(ctx context.Context, id, url string) (*models.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.ProfileImage = url
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
