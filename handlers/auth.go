package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/auth"
	"github.com/movieservice/auth-service/internal/tokens"
	"github.com/movieservice/auth-service/pkg/middleware"
)

// LoginRequest is accepted as an OAuth2 password form or as JSON.
type LoginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token" binding:"required"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func tokenResponse(p *tokens.Pair) TokenResponse {
	return TokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, TokenType: "bearer"}
}

// AuthHandler holds dependencies
type AuthHandler struct {
	auth *auth.Service
}

func NewAuthHandler(a *auth.Service) *AuthHandler {
	return &AuthHandler{auth: a}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", middleware.RequireAuth(h.auth), h.Logout)
}

// Login exchanges username and password for a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, apperr.Invalid("username and password are required"))
		return
	}
	pair, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Refresh rotates a refresh token into a new pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, apperr.Invalid("refresh_token is required"))
		return
	}
	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse(pair))
}

// Logout drops the caller's refresh token and revokes the presented access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	sub, _ := middleware.SubjectFrom(c)
	if err := h.auth.Logout(c.Request.Context(), sub.UserID, middleware.TokenFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
