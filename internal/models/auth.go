package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest carries the external identity assertion presented at login.
type LoginRequest struct {
	IDToken   string `json:"id_token" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued session and user info. Tokens travel in
// httpOnly cookies; the body only reports identity and expiry.
type LoginResponse struct {
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	AccessExpiresIn  int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	IssuedAt         time.Time `json:"issued_at"`
	User             UserInfo  `json:"user"`
}

// RefreshResponse returns the rotated token pair.
type RefreshResponse struct {
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	AccessExpiresIn  int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	IssuedAt         time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	AvatarURL  string   `json:"avatar_url"`
	Role       UserRole `json:"role"`
}

// UpdateProfileRequest mutates profile fields outside the login flow.
type UpdateProfileRequest struct {
	GivenName  *string `json:"given_name" validate:"omitempty,min=1"`
	FamilyName *string `json:"family_name" validate:"omitempty,min=1"`
	AvatarURL  *string `json:"avatar_url" validate:"omitempty,url"`
}

// UpdateRoleRequest promotes or demotes a user; admin only.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// JWTClaims is the claim set shared by access and refresh tokens. The two
// token kinds differ only in signing secret and lifetime.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Info projects the claims into the response shape.
func (c *JWTClaims) Info() UserInfo {
	return UserInfo{ID: c.UserID, Email: c.Email, Role: c.Role}
}
