package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/kakao"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
)

const defaultKakaoProfileURL = "https://kapi.kakao.com/v2/user/me"

// Kakao implements Provider for Kakao Login.
type Kakao struct {
	conf       *oauth2.Config
	profileURL string
	client     *http.Client
}

func NewKakao(cfg Config) *Kakao {
	profileURL := cfg.UserInfoURL
	if profileURL == "" {
		profileURL = defaultKakaoProfileURL
	}
	return &Kakao{
		conf:       cfg.oauth2Config(kakao.Endpoint),
		profileURL: profileURL,
		client:     cfg.httpClient(),
	}
}

func (k *Kakao) Name() models.Provider { return models.ProviderKakao }

func (k *Kakao) AuthCodeURL(state string) string {
	return k.conf.AuthCodeURL(state)
}

func (k *Kakao) Exchange(ctx context.Context, code string) (*models.ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, k.client)
	tok, err := k.conf.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Upstream(err, "kakao token exchange failed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("kakao: build profile request: %w", err)
	}
	resp, err := k.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "kakao profile request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.Upstream(err, "kakao profile read failed")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(fmt.Errorf("status %d: %s", resp.StatusCode, body), "kakao profile request failed")
	}
	if !gjson.ValidBytes(body) {
		return nil, apperr.Upstream(nil, "kakao profile response is not JSON")
	}

	profile := gjson.ParseBytes(body)
	id := profile.Get("id")
	if !id.Exists() || id.String() == "" {
		return nil, apperr.Upstream(nil, "kakao profile has no id")
	}
	account := profile.Get("kakao_account")
	return &models.ExternalIdentity{
		Provider:       models.ProviderKakao,
		ProviderUserID: id.String(),
		Email:          account.Get("email").String(),
		Name:           account.Get("profile.nickname").String(),
		ProfileImage:   account.Get("profile.profile_image_url").String(),
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		ExpiresAt:      expiryOf(tok),
	}, nil
}
