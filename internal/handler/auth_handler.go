package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coursedesk/coursedesk-api/internal/middleware"
	"github.com/coursedesk/coursedesk-api/internal/models"
	appErrors "github.com/coursedesk/coursedesk-api/pkg/errors"
	"github.com/coursedesk/coursedesk-api/pkg/response"
)

type authService interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*models.RefreshResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	RevokeAllSessions(ctx context.Context, userID string) error
}

type userGetter interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// CookieSettings controls how session cookies are written.
type CookieSettings struct {
	Domain string
	Secure bool
}

// AuthHandler wires HTTP endpoints to the auth service. Tokens travel in
// httpOnly cookies; response bodies only carry identity and expiry.
type AuthHandler struct {
	service authService
	users   userGetter
	cookies CookieSettings
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(svc authService, users userGetter, cookies CookieSettings) *AuthHandler {
	return &AuthHandler{service: svc, users: users, cookies: cookies}
}

// The refresh cookie is scoped to the auth endpoints so it never rides
// along on ordinary API requests.
const refreshCookiePath = "/api/v1/auth"

func (h *AuthHandler) setSessionCookies(c *gin.Context, access string, accessTTL int64, refresh string, refreshExpiry time.Time) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookieName, access, int(accessTTL), "/", h.cookies.Domain, h.cookies.Secure, true)
	refreshMaxAge := int(time.Until(refreshExpiry).Seconds())
	c.SetCookie(middleware.RefreshCookieName, refresh, refreshMaxAge, refreshCookiePath, h.cookies.Domain, h.cookies.Secure, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookieName, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(middleware.RefreshCookieName, "", -1, refreshCookiePath, h.cookies.Domain, h.cookies.Secure, true)
}

// refreshTokenFromRequest prefers the session cookie; API clients without
// cookies may send the token in the body instead.
func refreshTokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(middleware.RefreshCookieName); err == nil && cookie != "" {
		return cookie
	}
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&payload); err == nil {
		return payload.RefreshToken
	}
	return ""
}

// Login godoc
// @Summary Sign in with an identity assertion
// @Description Verifies a provider-issued ID token and opens a session
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Login payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, res.AccessToken, res.AccessExpiresIn, res.RefreshToken, res.RefreshExpiresAt)
	response.JSON(c, http.StatusOK, res, nil)
}

// Refresh godoc
// @Summary Refresh the session
// @Description Exchanges the refresh token for a rotated token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken := refreshTokenFromRequest(c)
	if refreshToken == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing refresh token"))
		return
	}

	res, err := h.service.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.clearSessionCookies(c)
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, res.AccessToken, res.AccessExpiresIn, res.RefreshToken, res.RefreshExpiresAt)
	response.JSON(c, http.StatusOK, res, nil)
}

// Logout godoc
// @Summary End the session
// @Description Revokes the refresh token and clears session cookies
// @Tags Authentication
// @Produce json
// @Success 204 {object} response.Envelope
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken := refreshTokenFromRequest(c)

	// Cookies are cleared regardless; a client with no live session still
	// ends up logged out.
	if err := h.service.Logout(c.Request.Context(), refreshToken); err != nil {
		h.clearSessionCookies(c)
		response.Error(c, err)
		return
	}

	h.clearSessionCookies(c)
	response.NoContent(c)
}

// RevokeSessions godoc
// @Summary Revoke all sessions for a user
// @Description Drops every refresh token the user holds
// @Tags Authentication
// @Produce json
// @Param id path string true "User ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users/{id}/sessions [delete]
func (h *AuthHandler) RevokeSessions(c *gin.Context) {
	if err := h.service.RevokeAllSessions(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Me godoc
// @Summary Get current user
// @Description Returns the authenticated user's profile
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	// Claims can lag behind role or profile changes; serve the stored record.
	user, err := h.users.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, models.UserInfo{
		ID:         user.ID,
		Email:      user.Email,
		GivenName:  user.GivenName,
		FamilyName: user.FamilyName,
		AvatarURL:  user.AvatarURL,
		Role:       user.Role,
	}, nil)
}
