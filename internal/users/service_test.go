package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
	"github.com/movieservice/auth-service/internal/passwords"
)

func newTestService() (*Service, *MemoryRepository) {
	repo := NewMemoryRepository()
	return NewService(repo, passwords.NewHasher(bcrypt.MinCost)), repo
}

func strPtr(s string) *string { return &s }

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, Registration{Email: "Bob@Example.com", Username: "bob", Password: "hunter2", Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", u.Email)
	assert.True(t, u.IsActive)
	assert.NotEqual(t, "hunter2", u.HashedPassword)

	got, err := svc.Authenticate(ctx, "bob", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, Registration{Email: "bob@example.com", Username: "bob", Password: "hunter2"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, &models.User{Username: "kakao_1", IsActive: true}))

	_, errWrong := svc.Authenticate(ctx, "bob", "wrong")
	_, errMissing := svc.Authenticate(ctx, "nobody", "hunter2")
	_, errNoPassword := svc.Authenticate(ctx, "kakao_1", "")

	for _, err := range []error{errWrong, errMissing, errNoPassword} {
		assert.True(t, errors.Is(err, apperr.ErrUnauthenticated))
		assert.Equal(t, errWrong.Error(), err.Error())
	}
}

func TestRegister_Duplicates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, Registration{Email: "a@example.com", Username: "a", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, Registration{Email: "A@example.com", Username: "other", Password: "pw"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)
	assert.Contains(t, apperr.Message(err), "email")

	_, err = svc.Register(ctx, Registration{Email: "new@example.com", Username: "a", Password: "pw"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)
	assert.Contains(t, apperr.Message(err), "username")
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Register(context.Background(), Registration{Username: " ", Password: "pw"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.Register(context.Background(), Registration{Username: "a"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestGetByID_NotFound(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u, err := svc.Register(ctx, Registration{Email: "a@example.com", Username: "a", Password: "old"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, Registration{Email: "b@example.com", Username: "b", Password: "pw"})
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Name: strPtr("Alice"), Password: strPtr("new")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)

	_, err = svc.Authenticate(ctx, "a", "old")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = svc.Authenticate(ctx, "a", "new")
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: strPtr("b@example.com")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)
	_, err = svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Username: strPtr("b")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)

	// keeping one's own email is not a conflict
	_, err = svc.UpdateProfile(ctx, u.ID, ProfileUpdate{Email: strPtr("A@example.com")})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, "missing", ProfileUpdate{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetProfileImage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u, err := svc.Register(ctx, Registration{Username: "a", Password: "pw"})
	require.NoError(t, err)

	got, err := svc.SetProfileImage(ctx, u.ID, "http://minio:9000/avatars/a.png")
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/avatars/a.png", got.ProfileImage)
}
