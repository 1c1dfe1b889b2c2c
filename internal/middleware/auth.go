package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coursedesk/coursedesk-api/internal/models"
	appErrors "github.com/coursedesk/coursedesk-api/pkg/errors"
	"github.com/coursedesk/coursedesk-api/pkg/response"
)

// ContextUserKey is the gin context key storing verified access claims.
const ContextUserKey = "currentUser"

// Cookie names for the session token pair. Both cookies are httpOnly; the
// browser never exposes the tokens to scripts.
const (
	AccessCookieName  = "cd_access"
	RefreshCookieName = "cd_refresh"
)

type accessVerifier interface {
	VerifyAccess(tokenString string) (*models.JWTClaims, error)
}

// extractAccessToken pulls the access token from the request. The session
// cookie wins over the Authorization header when both are present; browser
// sessions are the primary client and stale headers must not shadow them.
func extractAccessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessCookieName); err == nil && cookie != "" {
		return cookie
	}

	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Auth protects routes by requiring a valid access token, delivered either
// in the session cookie or as a bearer header.
func Auth(verifier accessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractAccessToken(c)
		if tokenString == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials"))
			c.Abort()
			return
		}

		claims, err := verifier.VerifyAccess(tokenString)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present but never blocks.
func OptionalAuth(verifier accessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractAccessToken(c)
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := verifier.VerifyAccess(tokenString)
		if err != nil {
			c.Next()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}
