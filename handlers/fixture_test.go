package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/movieservice/auth-service/internal/accounts"
	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/auth"
	"github.com/movieservice/auth-service/internal/config"
	"github.com/movieservice/auth-service/internal/models"
	"github.com/movieservice/auth-service/internal/oauth"
	"github.com/movieservice/auth-service/internal/passwords"
	"github.com/movieservice/auth-service/internal/sessions"
	"github.com/movieservice/auth-service/internal/storage"
	"github.com/movieservice/auth-service/internal/tokens"
	"github.com/movieservice/auth-service/internal/users"
)

// fakeProvider returns a fixed identity for any code except "bad".
type fakeProvider struct {
	name     models.Provider
	identity models.ExternalIdentity
}

func (f *fakeProvider) Name() models.Provider { return f.name }
func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example.com/authorize?state=" + state
}
func (f *fakeProvider) Exchange(_ context.Context, code string) (*models.ExternalIdentity, error) {
	if code == "bad" {
		return nil, apperr.Upstream(errors.New("invalid_grant"), "%s token exchange failed", f.name)
	}
	id := f.identity
	return &id, nil
}

// fakeAvatars records uploads in memory.
type fakeAvatars struct {
	uploaded map[string][]byte
}

func (f *fakeAvatars) UploadAvatar(_ context.Context, userID string, r io.Reader, size int64, contentType string) (string, error) {
	key, err := storage.AvatarKey(userID, contentType)
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.uploaded[key] = b
	return "http://minio.test/avatars/" + key, nil
}

func (f *fakeAvatars) Ping(context.Context) error { return nil }

type fixture struct {
	router  *gin.Engine
	cfg     *config.Config
	auth    *auth.Service
	users   *users.Service
	repo    *users.MemoryRepository
	redis   *mr.Miniredis
	avatars *fakeAvatars
}

func newFixture(t *testing.T, withAvatars bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{Server: config.ServerConfig{FrontendURL: "http://front.test"}}
	repo := users.NewMemoryRepository()
	userSvc := users.NewService(repo, passwords.NewHasher(bcrypt.MinCost))
	tok := tokens.NewService("handler-test-secret-key", 15*time.Minute, 30*24*time.Hour)
	kakao := &fakeProvider{name: models.ProviderKakao, identity: models.ExternalIdentity{
		Provider: models.ProviderKakao, ProviderUserID: "123", Email: "e@example.com", Name: "Kim Minji",
	}}
	google := &fakeProvider{name: models.ProviderGoogle, identity: models.ExternalIdentity{
		Provider: models.ProviderGoogle, ProviderUserID: "456", Email: "e@example.com", Name: "Lee",
	}}
	authSvc := auth.NewService(userSvc, tok, sessions.NewRedisCache(client), accounts.NewResolver(repo, nil), oauth.NewRegistry(kakao, google))

	f := &fixture{cfg: cfg, auth: authSvc, users: userSvc, repo: repo, redis: m}
	var avatars storage.AvatarStore
	if withAvatars {
		f.avatars = &fakeAvatars{uploaded: map[string][]byte{}}
		avatars = f.avatars
	}

	r := gin.New()
	api := r.Group("/api/v1")
	NewAuthHandler(authSvc).Register(api)
	NewOAuthHandler(cfg, authSvc).Register(api)
	NewUsersHandler(authSvc, userSvc, avatars).Register(api)
	f.router = r
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (f *fixture) register(t *testing.T, username, password string) *models.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), users.Registration{Email: username + "@example.com", Username: username, Password: password})
	require.NoError(t, err)
	return u
}

func (f *fixture) login(t *testing.T, username, password string) *tokens.Pair {
	t.Helper()
	pair, err := f.auth.Login(context.Background(), username, password)
	require.NoError(t, err)
	return pair
}
