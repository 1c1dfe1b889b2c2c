package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"

	appErrors "github.com/coursedesk/coursedesk-api/pkg/errors"
)

// GoogleVerifier validates Google-issued OIDC ID tokens against the
// provider's published keys and the configured client ID audience. Key
// material is fetched and cached by the oidc library.
type GoogleVerifier struct {
	verifier *oidc.IDTokenVerifier
	logger   *zap.Logger
}

// NewGoogleVerifier discovers the issuer and prepares a token verifier.
func NewGoogleVerifier(ctx context.Context, issuerURL, clientID string, logger *zap.Logger) (*GoogleVerifier, error) {
	if issuerURL == "" || clientID == "" {
		return nil, errors.New("google verifier requires issuer URL and client ID")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("init oidc provider: %w", err)
	}

	return &GoogleVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		logger:   logger,
	}, nil
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Verify checks signature, audience and expiry, then extracts the normalized
// identity. Every failure collapses to the same unauthenticated outcome.
func (v *GoogleVerifier) Verify(ctx context.Context, rawIDToken string) (*ExternalIdentity, error) {
	if rawIDToken == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidIdentity, "")
	}

	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		v.logger.Debug("id token verification failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidIdentity.Code, appErrors.ErrInvalidIdentity.Status, appErrors.ErrInvalidIdentity.Message)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidIdentity.Code, appErrors.ErrInvalidIdentity.Status, appErrors.ErrInvalidIdentity.Message)
	}

	identity, err := normalize(claims)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidIdentity.Code, appErrors.ErrInvalidIdentity.Status, appErrors.ErrInvalidIdentity.Message)
	}

	return identity, nil
}

func normalize(claims googleClaims) (*ExternalIdentity, error) {
	if claims.Subject == "" {
		return nil, errors.New("assertion missing subject")
	}
	if claims.Email == "" {
		return nil, errors.New("assertion missing email")
	}
	if !claims.EmailVerified {
		return nil, errors.New("assertion email not verified")
	}

	return &ExternalIdentity{
		Subject:    claims.Subject,
		Email:      claims.Email,
		GivenName:  claims.GivenName,
		FamilyName: claims.FamilyName,
		AvatarURL:  claims.Picture,
	}, nil
}
