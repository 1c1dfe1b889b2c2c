package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursedesk/coursedesk-api/internal/models"
	"github.com/coursedesk/coursedesk-api/internal/token"
)

func newTestIssuer() *token.Issuer {
	return token.NewIssuer(token.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    168 * time.Hour,
	})
}

func newAuthRouter(issuer *token.Issuer, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{Auth(issuer)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	router.GET("/protected/:id", handlers...)
	return router
}

func issueAccess(t *testing.T, issuer *token.Issuer, role models.UserRole) string {
	t.Helper()
	signed, _, err := issuer.IssueAccess(&models.User{ID: "u1", Email: "user@example.com", Role: role})
	require.NoError(t, err)
	return signed
}

func TestAuthAcceptsCookie(t *testing.T) {
	issuer := newTestIssuer()
	router := newAuthRouter(issuer)

	req := httptest.NewRequest(http.MethodGet, "/protected/u1", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: issueAccess(t, issuer, models.RoleStudent)})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	issuer := newTestIssuer()
	router := newAuthRouter(issuer)

	req := httptest.NewRequest(http.MethodGet, "/protected/u1", nil)
	req.Header.Set("Authorization", "Bearer "+issueAccess(t, issuer, models.RoleStudent))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthCookieWinsOverHeader(t *testing.T) {
	issuer := newTestIssuer()
	router := newAuthRouter(issuer)

	// Valid cookie plus garbage header: the cookie must be the one consulted.
	req := httptest.NewRequest(http.MethodGet, "/protected/u1", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: issueAccess(t, issuer, models.RoleStudent)})
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMissingCredentials(t *testing.T) {
	router := newAuthRouter(newTestIssuer())

	req := httptest.NewRequest(http.MethodGet, "/protected/u1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsRefreshTokenOnAccessPath(t *testing.T) {
	issuer := newTestIssuer()
	router := newAuthRouter(issuer)

	refresh, _, err := issuer.IssueRefresh(&models.User{ID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected/u1", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: refresh})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRejectsMalformedHeader(t *testing.T) {
	issuer := newTestIssuer()
	router := newAuthRouter(issuer)

	req := httptest.NewRequest(http.MethodGet, "/protected/u1", nil)
	req.Header.Set("Authorization", issueAccess(t, issuer, models.RoleStudent)) // no Bearer prefix
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuthPassesWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/open", OptionalAuth(newTestIssuer()), func(c *gin.Context) {
		_, authed := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"authenticated": authed})
	})

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)
}
