package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/coursedesk/coursedesk-api/internal/models"
	"github.com/coursedesk/coursedesk-api/internal/oauth"
	"github.com/coursedesk/coursedesk-api/internal/ratelimit"
	appErrors "github.com/coursedesk/coursedesk-api/pkg/errors"
)

type identityStore interface {
	FindOrCreate(ctx context.Context, identity *oauth.ExternalIdentity) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type tokenIssuer interface {
	IssueAccess(user *models.User) (string, time.Time, error)
	IssueRefresh(user *models.User) (string, time.Time, error)
	VerifyRefresh(tokenString string) (*models.JWTClaims, error)
	AccessTTL() time.Duration
}

type tokenLedger interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	Consume(ctx context.Context, token, userID string, now time.Time) (*models.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuthService orchestrates the login, refresh and logout flows. Credential
// verification is delegated to the identity provider; this service decides
// admission (rate limit), resolves the account, and manages the session
// token pair.
type AuthService struct {
	verifier  oauth.Verifier
	limiter   ratelimit.Limiter
	users     identityStore
	issuer    tokenIssuer
	ledger    tokenLedger
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(verifier oauth.Verifier, limiter ratelimit.Limiter, users identityStore, issuer tokenIssuer, ledger tokenLedger, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{
		verifier:  verifier,
		limiter:   limiter,
		users:     users,
		issuer:    issuer,
		ledger:    ledger,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Login verifies the presented identity assertion and opens a session.
//
// The rate limit is keyed on the verified email, so the assertion is checked
// first; forged assertions cannot exhaust another user's window. An attempt
// only counts against the window once it carries a valid assertion.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	identity, err := s.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		s.metrics.ObserveLogin("invalid_assertion")
		s.logger.Info("rejected identity assertion", zap.String("ip", req.IP), zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrInvalidIdentity, "invalid identity assertion")
	}

	res, err := s.limiter.Allow(ctx, identity.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "rate limiter unavailable")
	}
	if !res.Allowed {
		s.metrics.ObserveLogin("throttled")
		s.logger.Warn("login throttled",
			zap.String("email", identity.Email),
			zap.String("ip", req.IP),
			zap.Duration("retry_after", res.RetryAfter),
		)
		return nil, appErrors.WithMeta(appErrors.ErrRateLimited, map[string]interface{}{
			"retry_after_seconds": int64(res.RetryAfter.Seconds()),
		})
	}

	user, err := s.users.FindOrCreate(ctx, identity)
	if err != nil {
		s.metrics.ObserveLogin("error")
		return nil, err
	}

	accessToken, _, err := s.issuer.IssueAccess(user)
	if err != nil {
		s.metrics.ObserveLogin("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	refreshToken, refreshExpiry, err := s.issuer.IssueRefresh(user)
	if err != nil {
		s.metrics.ObserveLogin("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	if err := s.ledger.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: refreshExpiry,
	}); err != nil {
		s.metrics.ObserveLogin("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	s.metrics.ObserveLogin("success")
	s.logger.Info("login succeeded",
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("ip", req.IP),
	)

	return &models.LoginResponse{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresIn:  int64(s.issuer.AccessTTL().Seconds()),
		RefreshExpiresAt: refreshExpiry,
		IssuedAt:         s.now().UTC(),
		User: models.UserInfo{
			ID:         user.ID,
			Email:      user.Email,
			GivenName:  user.GivenName,
			FamilyName: user.FamilyName,
			AvatarURL:  user.AvatarURL,
			Role:       user.Role,
		},
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The presented
// token is consumed in the same step, so each refresh token grants exactly
// one renewal; replays after a successful exchange are unauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.RefreshResponse, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		s.metrics.ObserveRefresh("invalid_token")
		return nil, err
	}

	if _, err := s.ledger.Consume(ctx, refreshToken, claims.UserID, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.ObserveRefresh("revoked")
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
		}
		s.metrics.ObserveRefresh("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume refresh token")
	}

	// Role and profile come from the store, not from stale claims.
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrNotFound.Code {
			s.metrics.ObserveRefresh("revoked")
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		s.metrics.ObserveRefresh("error")
		return nil, err
	}

	accessToken, _, err := s.issuer.IssueAccess(user)
	if err != nil {
		s.metrics.ObserveRefresh("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	newRefresh, refreshExpiry, err := s.issuer.IssueRefresh(user)
	if err != nil {
		s.metrics.ObserveRefresh("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}

	if err := s.ledger.Create(ctx, &models.RefreshToken{
		UserID:    user.ID,
		Token:     newRefresh,
		ExpiresAt: refreshExpiry,
	}); err != nil {
		s.metrics.ObserveRefresh("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	s.metrics.ObserveRefresh("success")

	return &models.RefreshResponse{
		AccessToken:      accessToken,
		RefreshToken:     newRefresh,
		AccessExpiresIn:  int64(s.issuer.AccessTTL().Seconds()),
		RefreshExpiresAt: refreshExpiry,
		IssuedAt:         s.now().UTC(),
	}, nil
}

// Logout revokes the presented refresh token. Revoking a token that is
// absent, expired or already revoked succeeds; logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.ledger.Revoke(ctx, refreshToken); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke refresh token")
	}
	return nil
}

// RevokeAllSessions drops every refresh token for the user. Administrative
// lockout path; outstanding access tokens still run out their short lifetime.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string) error {
	if err := s.ledger.RevokeAllForUser(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
	}
	s.logger.Info("revoked all sessions", zap.String("user_id", userID))
	return nil
}

// CleanupExpired removes ledger rows whose expiry has passed. Invoked from a
// background ticker; a failed sweep only delays cleanup.
func (s *AuthService) CleanupExpired(ctx context.Context) {
	deleted, err := s.ledger.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		s.logger.Warn("refresh token sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("swept expired refresh tokens", zap.Int64("deleted", deleted))
	}
}
