// Package tokens declares the server-side store of opaque tokens (refresh,
// email verification, password reset) and its PostgreSQL implementation.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository persists opaque tokens by their hash.
type Repository interface {
	// Create stores token and fills its ID and CreatedAt.
	Create(ctx context.Context, token *models.Token) (*models.Token, error)

	// Consume atomically marks the token with hash used and revoked, provided
	// it is of type typ, not revoked, unused and expires after now. It returns
	// common.ErrorNotFound when no such token exists, so of several concurrent
	// callers at most one succeeds.
	Consume(ctx context.Context, hash string, typ models.TokenType, now time.Time) (*models.Token, error)

	// RevokeByHash revokes a non-revoked token. It reports whether a row changed.
	RevokeByHash(ctx context.Context, hash string, typ models.TokenType, now time.Time) (bool, error)

	// ListActive returns non-revoked tokens of typ for the account, newest first.
	ListActive(ctx context.Context, accountID string, typ models.TokenType, limit int) ([]models.Session, error)

	// RevokeOwned revokes token id only if it belongs to accountID and has type typ.
	RevokeOwned(ctx context.Context, id, accountID string, typ models.TokenType, now time.Time) (bool, error)

	// Revoke revokes token id unconditionally.
	Revoke(ctx context.Context, id string, now time.Time) (bool, error)

	// RevokeAllForAccount revokes every live token of typ for the account.
	RevokeAllForAccount(ctx context.Context, accountID string, typ models.TokenType, now time.Time) (int64, error)

	// DeleteStale removes tokens that expired before the cutoff, or were
	// revoked (or used) before it. Live tokens are never touched.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}
