package oauth

import (
	"context"
)

// ExternalIdentity is the normalized result of a verified identity assertion.
type ExternalIdentity struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	AvatarURL  string
}

// Verifier validates an externally issued identity assertion and extracts a
// normalized identity. Implementations are fail-closed: ambiguous or
// malformed input is invalid, never a permissive default.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*ExternalIdentity, error)
}
