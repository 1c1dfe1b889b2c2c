package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coursedesk/coursedesk-api/internal/models"
)

// RefreshTokenRepository is the ledger of issued refresh tokens. Row presence
// is the sole authority on whether a refresh token may be renewed; the expiry
// claim embedded in the token itself is only a redundant check.
type RefreshTokenRepository struct {
	db *sqlx.DB
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository.
func NewRefreshTokenRepository(db *sqlx.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create persists a ledger row. One row per login; concurrent rows for the
// same user are a supported feature, not a conflict.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at) VALUES (:id, :user_id, :token, :expires_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// Consume atomically validates and removes the row for a token owned by the
// given user. The conditional DELETE closes the check-then-use race between
// concurrent refresh attempts on the same token: exactly one caller gets the
// row back, everyone else sees sql.ErrNoRows. Consumption doubles as the
// rotation revoke of the presented token.
//
// A row whose stored expiry has passed is not returned; it is pruned
// opportunistically so the ledger self-cleans under normal traffic rather
// than waiting for the periodic sweep.
func (r *RefreshTokenRepository) Consume(ctx context.Context, token, userID string, now time.Time) (*models.RefreshToken, error) {
	const query = `DELETE FROM refresh_tokens WHERE token = $1 AND user_id = $2 AND expires_at > $3 RETURNING id, user_id, token, expires_at, created_at`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token, userID, now); err != nil {
		if err == sql.ErrNoRows {
			// Either absent (revoked) or expired; drop an expired leftover.
			const prune = `DELETE FROM refresh_tokens WHERE token = $1 AND user_id = $2`
			if _, pruneErr := r.db.ExecContext(ctx, prune, token, userID); pruneErr != nil {
				return nil, fmt.Errorf("prune refresh token: %w", pruneErr)
			}
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	return &rt, nil
}

// Revoke deletes the row for a token unconditionally. Revoking an absent
// token is not an error; logout stays idempotent.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	const query = `DELETE FROM refresh_tokens WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser deletes every ledger row owned by the user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM refresh_tokens WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpired sweeps rows whose stored expiry has passed. Used by the
// operational cleanup path; correctness does not depend on it.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
