package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/auth"
	"github.com/movieservice/auth-service/internal/config"
	"github.com/movieservice/auth-service/internal/models"
	"github.com/movieservice/auth-service/pkg/logger"
	"github.com/movieservice/auth-service/pkg/middleware"
)

const (
	stateCookie        = "oauth_state"
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
	userInfoCookie     = "user_info"

	stateMaxAge = 10 * 60
)

// OAuthHandler drives the browser side of provider logins.
type OAuthHandler struct {
	cfg  *config.Config
	auth *auth.Service
}

func NewOAuthHandler(cfg *config.Config, a *auth.Service) *OAuthHandler {
	return &OAuthHandler{cfg: cfg, auth: a}
}

// Register routes under /oauth
func (h *OAuthHandler) Register(rg *gin.RouterGroup) {
	o := rg.Group("/oauth")
	o.POST("/logout", middleware.OptionalAuth(h.auth, accessTokenCookie), h.Logout)
	o.GET("/:provider", h.Login)
	o.GET("/:provider/callback", h.Callback)
}

func (h *OAuthHandler) setCookie(c *gin.Context, name, value string, maxAge int, httpOnly bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.cfg.Server.CookieSecure, httpOnly)
}

func (h *OAuthHandler) callbackURL() string {
	return h.cfg.Server.FrontendURL + "/auth/oauth-callback"
}

func (h *OAuthHandler) fail(c *gin.Context, description string) {
	q := url.Values{"error": {"true"}, "error_description": {description}}
	c.Redirect(http.StatusFound, h.callbackURL()+"?"+q.Encode())
}

// Login redirects the browser to the provider consent page.
func (h *OAuthHandler) Login(c *gin.Context) {
	state := uuid.NewString()
	target, err := h.auth.OAuthLoginURL(c.Param("provider"), state)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setCookie(c, stateCookie, state, stateMaxAge, true)
	c.Redirect(http.StatusFound, target)
}

type userInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	OAuthProvider string `json:"oauth_provider"`
}

func providerName(s string) string {
	p, err := models.ParseProvider(s)
	if err != nil {
		return s
	}
	return p.String()
}

func secondsUntil(t time.Time) int {
	if s := int(time.Until(t).Seconds()); s > 0 {
		return s
	}
	return 0
}

// Callback completes the provider login and hands the session to the
// frontend as cookies.
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")
	if err := h.auth.Provider(provider); err != nil {
		writeError(c, err)
		return
	}
	log := logger.With("provider", provider)

	if e := c.Query("error"); e != "" {
		log.Infof("oauth login cancelled by provider: %s", e)
		h.fail(c, "Login was cancelled.")
		return
	}

	expected, _ := c.Cookie(stateCookie)
	h.setCookie(c, stateCookie, "", -1, true)
	state := c.Query("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		log.Warnf("oauth state mismatch")
		h.fail(c, "Invalid login state. Please try again.")
		return
	}

	code := c.Query("code")
	log.Debugf("oauth callback: code length=%d", len(code))
	res, err := h.auth.CompleteOAuth(c.Request.Context(), provider, code)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			h.fail(c, apperr.Message(err))
			return
		}
		log.Errorf("oauth login failed: %v", err)
		h.fail(c, "Social login failed. Please try again.")
		return
	}

	info, err := json.Marshal(userInfo{
		ID:            res.User.ID,
		Email:         res.User.Email,
		Name:          res.User.Name,
		Username:      res.User.Username,
		OAuthProvider: providerName(provider),
	})
	if err != nil {
		h.fail(c, "Social login failed. Please try again.")
		return
	}

	h.setCookie(c, accessTokenCookie, res.Pair.AccessToken, secondsUntil(res.Pair.AccessExpiresAt), true)
	h.setCookie(c, refreshTokenCookie, res.Pair.RefreshToken, secondsUntil(res.Pair.RefreshExpiresAt), true)
	// Path escaping keeps spaces as %20, which decodeURIComponent reads back.
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     userInfoCookie,
		Value:    url.PathEscape(string(info)),
		MaxAge:   secondsUntil(res.Pair.AccessExpiresAt),
		Path:     "/",
		Secure:   h.cfg.Server.CookieSecure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
	c.Redirect(http.StatusFound, h.callbackURL())
}

// Logout clears the session cookies. A still-valid access token, from the
// bearer header or the access cookie, is also revoked server side.
func (h *OAuthHandler) Logout(c *gin.Context) {
	if sub, ok := middleware.SubjectFrom(c); ok {
		if err := h.auth.Logout(c.Request.Context(), sub.UserID, middleware.TokenFrom(c)); err != nil {
			logger.With("user_id", sub.UserID).Warnf("oauth logout: %v", err)
		}
	}
	for _, name := range []string{accessTokenCookie, refreshTokenCookie, userInfoCookie} {
		h.setCookie(c, name, "", -1, name != userInfoCookie)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
