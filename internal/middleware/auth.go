package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Bruno2K/team-scrapbook-sub000/internal/errors"
	"github.com/Bruno2K/team-scrapbook-sub000/internal/jwt"
	"github.com/Bruno2K/team-scrapbook-sub000/pkg/response"
)

const (
	userIDKey   = "user_id"
	deviceIDKey = "device_id"
)

// TokenValidator validates access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// JWTAuth requires a bearer access token and stores its claims on the context.
func JWTAuth(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c, apperrors.ErrTokenInvalid)
			c.Abort()
			return
		}

		claims, err := tokens.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Unauthorized(c, apperrors.ErrTokenExpired)
			} else {
				response.Unauthorized(c, apperrors.ErrTokenInvalid)
			}
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(deviceIDKey, claims.DeviceID)
		c.Next()
	}
}

func extractToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUserID returns the authenticated user, or 0 outside JWTAuth.
func GetUserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

func GetDeviceID(c *gin.Context) string {
	return c.GetString(deviceIDKey)
}
