package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	appauth "github.com/yigit/problemportal/internal/app/auth"
	"github.com/yigit/problemportal/internal/app/models/dto"
	"github.com/yigit/problemportal/internal/pkg/auth"
)

// Context keys set by SessionAuth.
const (
	ClaimsKey   = "sessionClaims"
	IdentityKey = "identity"
)

// AuthMiddleware reads the session cookie and guards role-restricted routes.
type AuthMiddleware struct {
	sessions *auth.SessionService
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(sessions *auth.SessionService) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// SessionAuth requires a valid session cookie and stores its identity in the
// request context.
func (m *AuthMiddleware) SessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(auth.SessionCookieName)
		if err != nil || token == "" {
			abortUnauthorized(c, dto.ErrorCodeUnauthorized, "Authentication required")
			return
		}

		claims, err := m.sessions.Parse(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				abortUnauthorized(c, dto.ErrorCodeExpiredToken, "Session has expired")
				return
			}
			abortUnauthorized(c, dto.ErrorCodeInvalidToken, "Authentication failed")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(IdentityKey, appauth.Identity{Role: claims.Role, Subject: claims.Subject})
		c.Next()
	}
}

// RoleRequired lets the request through only for the given role. It must run
// after SessionAuth.
func (m *AuthMiddleware) RoleRequired(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			abortUnauthorized(c, dto.ErrorCodeUnauthorized, "Authentication required")
			return
		}
		if id.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponse(dto.NewErrorDetail(dto.ErrorCodeForbidden, "Access denied")))
			return
		}
		c.Next()
	}
}

// GetIdentity returns the caller stored by SessionAuth.
func GetIdentity(c *gin.Context) (appauth.Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return appauth.Identity{}, false
	}
	id, ok := v.(appauth.Identity)
	return id, ok
}

// GetClaims returns the parsed session claims stored by SessionAuth.
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context, code dto.ErrorCode, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(dto.NewErrorDetail(code, message)))
}
