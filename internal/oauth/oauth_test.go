package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
)

// fakeProviderServer serves /token and /me like an OAuth provider would.
type fakeProviderServer struct {
	*httptest.Server
	tokenStatus   int
	profileStatus int
	profile       string
	gotCode       string
	gotAuth       string
}

func newFakeProviderServer(t *testing.T, profile string) *fakeProviderServer {
	f := &fakeProviderServer{tokenStatus: http.StatusOK, profileStatus: http.StatusOK, profile: profile}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.gotCode = r.PostForm.Get("code")
		if f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "provider-at",
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "provider-rt",
		})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		f.gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.profileStatus)
		_, _ = w.Write([]byte(f.profile))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeProviderServer) config() Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8000/api/v1/oauth/kakao/callback",
		AuthURL:      f.URL + "/authorize",
		TokenURL:     f.URL + "/token",
		UserInfoURL:  f.URL + "/me",
	}
}

const kakaoProfile = `{
  "id": 3141592653,
  "kakao_account": {
    "email": "kim@kakao.com",
    "profile": {"nickname": "Kim", "profile_image_url": "http://k.kakaocdn.net/img.jpg"}
  }
}`

func TestKakao_AuthCodeURL(t *testing.T) {
	srv := newFakeProviderServer(t, kakaoProfile)
	k := NewKakao(srv.config())

	u, err := url.Parse(k.AuthCodeURL("state-1"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "http://localhost:8000/api/v1/oauth/kakao/callback", q.Get("redirect_uri"))
}

func TestKakao_Exchange(t *testing.T) {
	srv := newFakeProviderServer(t, kakaoProfile)
	k := NewKakao(srv.config())

	id, err := k.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "auth-code", srv.gotCode)
	assert.Equal(t, "Bearer provider-at", srv.gotAuth)

	assert.Equal(t, models.ProviderKakao, id.Provider)
	assert.Equal(t, "3141592653", id.ProviderUserID)
	assert.Equal(t, "kim@kakao.com", id.Email)
	assert.Equal(t, "Kim", id.Name)
	assert.Equal(t, "http://k.kakaocdn.net/img.jpg", id.ProfileImage)
	assert.Equal(t, "provider-at", id.AccessToken)
	assert.Equal(t, "provider-rt", id.RefreshToken)
	assert.NotNil(t, id.ExpiresAt)
}

func TestKakao_ExchangeWithoutEmail(t *testing.T) {
	srv := newFakeProviderServer(t, `{"id": 42, "kakao_account": {"profile": {"nickname": "Anon"}}}`)
	id, err := NewKakao(srv.config()).Exchange(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, "42", id.ProviderUserID)
	assert.Empty(t, id.Email)
	assert.Empty(t, id.ProfileImage)
}

func TestKakao_UpstreamFailures(t *testing.T) {
	cases := map[string]func(*fakeProviderServer){
		"token rejected":   func(f *fakeProviderServer) { f.tokenStatus = http.StatusBadRequest },
		"profile 401":      func(f *fakeProviderServer) { f.profileStatus = http.StatusUnauthorized },
		"profile not json": func(f *fakeProviderServer) { f.profile = "<html>" },
		"profile no id":    func(f *fakeProviderServer) { f.profile = `{"kakao_account":{}}` },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newFakeProviderServer(t, kakaoProfile)
			mutate(srv)
			_, err := NewKakao(srv.config()).Exchange(context.Background(), "c")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrUpstream)
		})
	}
}

const googleProfile = `{"sub":"g-110169484474386276334","email":"lee@gmail.com","email_verified":true,"name":"Lee","picture":"https://lh3.googleusercontent.com/a/pic"}`

func TestGoogle_AuthCodeURL(t *testing.T) {
	srv := newFakeProviderServer(t, googleProfile)
	g := NewGoogle(context.Background(), srv.config())

	u, err := url.Parse(g.AuthCodeURL("s"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Contains(t, q.Get("scope"), "email")
	assert.Contains(t, q.Get("scope"), "profile")
	assert.Equal(t, "s", q.Get("state"))
}

func TestGoogle_Exchange(t *testing.T) {
	srv := newFakeProviderServer(t, googleProfile)
	g := NewGoogle(context.Background(), srv.config())

	id, err := g.Exchange(context.Background(), "google-code")
	require.NoError(t, err)
	assert.Equal(t, "google-code", srv.gotCode)
	assert.Equal(t, "Bearer provider-at", srv.gotAuth)
	assert.Equal(t, models.ProviderGoogle, id.Provider)
	assert.Equal(t, "g-110169484474386276334", id.ProviderUserID)
	assert.Equal(t, "lee@gmail.com", id.Email)
	assert.Equal(t, "Lee", id.Name)
	assert.Equal(t, "https://lh3.googleusercontent.com/a/pic", id.ProfileImage)
}

func TestGoogle_UpstreamFailures(t *testing.T) {
	srv := newFakeProviderServer(t, `{"email":"x@gmail.com"}`)
	_, err := NewGoogle(context.Background(), srv.config()).Exchange(context.Background(), "c")
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	srv = newFakeProviderServer(t, googleProfile)
	srv.profileStatus = http.StatusInternalServerError
	_, err = NewGoogle(context.Background(), srv.config()).Exchange(context.Background(), "c")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestRegistry(t *testing.T) {
	srv := newFakeProviderServer(t, kakaoProfile)
	reg := NewRegistry(NewKakao(srv.config()))

	p, err := reg.Get("KAKAO")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderKakao, p.Name())

	_, err = reg.Get("google")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = reg.Get("github")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{ClientID: "x"}.Enabled())
}
