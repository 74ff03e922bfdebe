package middleware

import (
	"crypto/subtle"

	"github.com/gepvi/gepvi-users/internal/config"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/gin-gonic/gin"
)

// callerAPIKey names callers authenticated with the shared key
const callerAPIKey = "api_key"

// APIKeyMiddleware guards the server-to-server API with a shared key. An
// empty configured key disables the check, for local development.
func APIKeyMiddleware(cfg *config.Configuration, logger *logger.Logger) gin.HandlerFunc {
	expected := []byte(cfg.Auth.APIKey)
	header := cfg.Auth.Header
	if header == "" {
		header = types.HeaderAPIKey
	}

	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}

		provided := c.GetHeader(header)
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			logger.Debugw("rejected api request", "path", c.FullPath(), "client_ip", c.ClientIP())
			c.Error(ierr.NewError("invalid api key").
				WithHint("Invalid API key").
				Mark(ierr.ErrUnauthorized))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(types.SetCallerID(c.Request.Context(), callerAPIKey))
		c.Next()
	}
}
