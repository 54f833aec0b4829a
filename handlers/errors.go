package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/pkg/logger"
)

// writeError translates err into a JSON error response. Internal errors are
// logged and answered with a generic body.
func writeError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err)
	switch status {
	case http.StatusUnauthorized:
		c.Header("WWW-Authenticate", "Bearer")
		msg = "Could not validate credentials"
	case http.StatusBadRequest:
		if errors.Is(err, apperr.ErrInactive) {
			msg = "Inactive user"
		}
	case http.StatusInternalServerError:
		logger.With("method", c.Request.Method, "path", c.FullPath()).Errorf("request failed: %v", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}
