package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursedesk/coursedesk-api/internal/middleware"
	"github.com/coursedesk/coursedesk-api/internal/models"
	appErrors "github.com/coursedesk/coursedesk-api/pkg/errors"
)

type authServiceMock struct {
	loginResp    *models.LoginResponse
	loginErr     error
	refreshResp  *models.RefreshResponse
	refreshErr   error
	logoutErr    error
	logoutCalled bool
	logoutToken  string
	refreshToken string
}

func (m *authServiceMock) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.loginResp, nil
}

func (m *authServiceMock) Refresh(ctx context.Context, refreshToken string) (*models.RefreshResponse, error) {
	m.refreshToken = refreshToken
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return m.refreshResp, nil
}

func (m *authServiceMock) Logout(ctx context.Context, refreshToken string) error {
	m.logoutCalled = true
	m.logoutToken = refreshToken
	return m.logoutErr
}

func (m *authServiceMock) RevokeAllSessions(ctx context.Context, userID string) error {
	return nil
}

type userGetterMock struct {
	user *models.User
	err  error
}

func (m *userGetterMock) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func cookieByName(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	res := w.Result()
	defer res.Body.Close()
	for _, cookie := range res.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestLoginSetsSessionCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{loginResp: &models.LoginResponse{
		AccessToken:      "access.jwt",
		RefreshToken:     "refresh.jwt",
		AccessExpiresIn:  900,
		RefreshExpiresAt: time.Now().Add(168 * time.Hour),
		IssuedAt:         time.Now(),
		User:             models.UserInfo{ID: "u1", Email: "user@example.com", Role: models.RoleStudent},
	}}
	handler := NewAuthHandler(mockSvc, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"id_token":"assertion"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)

	access := cookieByName(t, w, middleware.AccessCookieName)
	require.NotNil(t, access)
	assert.Equal(t, "access.jwt", access.Value)
	assert.True(t, access.HttpOnly)

	refresh := cookieByName(t, w, middleware.RefreshCookieName)
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh.jwt", refresh.Value)
	assert.True(t, refresh.HttpOnly)

	// Raw tokens never appear in the body.
	assert.NotContains(t, w.Body.String(), "access.jwt")
	assert.NotContains(t, w.Body.String(), "refresh.jwt")
}

func TestLoginMissingIDToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	// Binding accepts the empty body; the service layer rejects it.
	mockSvc := &authServiceMock{loginErr: appErrors.Clone(appErrors.ErrValidation, "invalid login payload")}
	handler := NewAuthHandler(mockSvc, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, cookieByName(t, w, middleware.AccessCookieName))
}

func TestLoginRateLimitedSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{loginErr: appErrors.WithMeta(appErrors.ErrRateLimited, map[string]interface{}{
		"retry_after_seconds": int64(42),
	})}
	handler := NewAuthHandler(mockSvc, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"id_token":"assertion"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Login(c)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
}

func TestRefreshReadsCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{refreshResp: &models.RefreshResponse{
		AccessToken:      "new.access",
		RefreshToken:     "new.refresh",
		AccessExpiresIn:  900,
		RefreshExpiresAt: time.Now().Add(168 * time.Hour),
		IssuedAt:         time.Now(),
	}}
	handler := NewAuthHandler(mockSvc, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshCookieName, Value: "old.refresh"})
	c.Request = req

	handler.Refresh(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "old.refresh", mockSvc.refreshToken)

	rotated := cookieByName(t, w, middleware.RefreshCookieName)
	require.NotNil(t, rotated)
	assert.Equal(t, "new.refresh", rotated.Value)
}

func TestRefreshBodyFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{refreshResp: &models.RefreshResponse{
		AccessToken:      "new.access",
		RefreshToken:     "new.refresh",
		AccessExpiresIn:  900,
		RefreshExpiresAt: time.Now().Add(168 * time.Hour),
	}}
	handler := NewAuthHandler(mockSvc, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewBufferString(`{"refresh_token":"body.refresh"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Refresh(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body.refresh", mockSvc.refreshToken)
}

func TestRefreshMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{}, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", nil)
	c.Request = req

	handler.Refresh(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshFailureClearsCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{refreshErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")}
	handler := NewAuthHandler(mockSvc, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshCookieName, Value: "stale.refresh"})
	c.Request = req

	handler.Refresh(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cleared := cookieByName(t, w, middleware.RefreshCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestLogoutClearsCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.RefreshCookieName, Value: "live.refresh"})
	c.Request = req

	handler.Logout(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mockSvc.logoutCalled)
	assert.Equal(t, "live.refresh", mockSvc.logoutToken)

	cleared := cookieByName(t, w, middleware.AccessCookieName)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)
}

func TestLogoutWithoutSessionStillSucceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &authServiceMock{}
	handler := NewAuthHandler(mockSvc, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/auth/logout", nil)
	c.Request = req

	handler.Logout(c)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMeServesStoredRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	users := &userGetterMock{user: &models.User{
		ID:    "u1",
		Email: "user@example.com",
		Role:  models.RoleTeacher,
	}}
	handler := NewAuthHandler(&authServiceMock{}, users, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Request = req
	// Claims still carry the old role; the stored record wins.
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Email: "user@example.com", Role: models.RoleStudent})

	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"Teacher"`)
}

func TestMeUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&authServiceMock{}, &userGetterMock{}, CookieSettings{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Request = req

	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
