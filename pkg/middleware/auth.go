package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/tokens"
	"github.com/movieservice/auth-service/pkg/logger"
)

const (
	subjectKey     = "subject"
	accessTokenKey = "access_token"
)

// Authenticator is the minimal interface the middleware depends on
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*tokens.Subject, error)
}

func bearer(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return "", false
	}
	var token string
	if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
		return "", false
	}
	return token, true
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
}

// reject answers a failed Authenticate call. Only credential failures are
// 401; store outages and internal errors keep their own status.
func reject(c *gin.Context, err error) {
	if errors.Is(err, apperr.ErrUnauthenticated) {
		unauthorized(c)
		return
	}
	status := apperr.HTTPStatus(err)
	logger.With("method", c.Request.Method, "path", c.FullPath(), "status", status).Errorf("authenticate request: %v", err)
	c.AbortWithStatusJSON(status, gin.H{"detail": apperr.Message(err)})
}

// RequireAuth rejects requests without a valid, non-revoked access token.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			unauthorized(c)
			return
		}
		sub, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			reject(c, err)
			return
		}
		c.Set(subjectKey, sub)
		c.Set(accessTokenKey, token)
		c.Next()
	}
}

// OptionalAuth attaches the subject when a token is presented, either as a
// bearer header or in the named cookie. Requests without a token, or with
// one that no longer authenticates, continue anonymously.
func OptionalAuth(a Authenticator, cookie string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok && cookie != "" {
			if v, err := c.Cookie(cookie); err == nil && v != "" {
				token, ok = v, true
			}
		}
		if !ok {
			c.Next()
			return
		}
		sub, err := a.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(subjectKey, sub)
			c.Set(accessTokenKey, token)
		case !errors.Is(err, apperr.ErrUnauthenticated):
			reject(c, err)
			return
		}
		c.Next()
	}
}

// SubjectFrom returns the authenticated subject set by RequireAuth or
// OptionalAuth.
func SubjectFrom(c *gin.Context) (*tokens.Subject, bool) {
	v, ok := c.Get(subjectKey)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*tokens.Subject)
	return sub, ok && sub != nil
}

// TokenFrom returns the raw bearer token that authenticated the request.
func TokenFrom(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}
