package models

import "time"

// RefreshToken is one row of the refresh token ledger. One row is written per
// login; multiple concurrent rows per user are a supported feature. A deleted
// row invalidates the token regardless of the expiry claim baked into it.
type RefreshToken struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Token     string    `db:"token" json:"token"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
