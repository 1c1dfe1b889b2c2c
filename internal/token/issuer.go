package token

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/coursedesk/coursedesk-api/internal/models"
	appErrors "github.com/coursedesk/coursedesk-api/pkg/errors"
)

// ErrInvalidToken is the single failure value for both verify paths. Expired,
// malformed and wrong-secret tokens are indistinguishable to callers.
var ErrInvalidToken = appErrors.New("UNAUTHORIZED", http.StatusUnauthorized, "invalid or expired token")

// Config holds the two independent signing secrets and token lifetimes.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      []string

	// Clock is injectable for expiry boundary tests; defaults to time.Now.
	Clock func() time.Time
}

// Issuer mints and validates the short-lived access tokens and long-lived
// refresh tokens. The two kinds share a claim shape but live in separate
// secret domains: a token signed under one secret must never verify under
// the other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      []string
	now           func() time.Time
}

// NewIssuer constructs an Issuer from config.
func NewIssuer(cfg Config) *Issuer {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		now:           now,
	}
}

// AccessTTL reports the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess signs a short-lived access token for the user.
func (i *Issuer) IssueAccess(user *models.User) (string, time.Time, error) {
	return i.sign(user, i.accessSecret, i.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for the user.
func (i *Issuer) IssueRefresh(user *models.User) (string, time.Time, error) {
	return i.sign(user, i.refreshSecret, i.refreshTTL)
}

// VerifyAccess validates a token against the access secret only.
func (i *Issuer) VerifyAccess(tokenString string) (*models.JWTClaims, error) {
	return i.verify(tokenString, i.accessSecret)
}

// VerifyRefresh validates a token against the refresh secret only.
func (i *Issuer) VerifyRefresh(tokenString string) (*models.JWTClaims, error) {
	return i.verify(tokenString, i.refreshSecret)
}

func (i *Issuer) sign(user *models.User, secret []byte, ttl time.Duration) (string, time.Time, error) {
	issuedAt := i.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.JWTClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   user.ID,
			Audience:  i.audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (i *Issuer) verify(tokenString string, secret []byte) (*models.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		&models.JWTClaims{},
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*models.JWTClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
