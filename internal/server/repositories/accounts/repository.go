// Package accounts declares the account store contract and its PostgreSQL
// implementation.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository persists accounts. Lookups of absent rows return
// common.ErrorNotFound; email/username collisions on Create return
// common.ErrorAlreadyExists.
type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	Count(ctx context.Context) (int64, error)

	// MarkEmailVerified sets email_verified_at once; later calls keep the
	// first timestamp.
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id string, hash string, at time.Time) error
	UpdateRole(ctx context.Context, id string, role models.Role, at time.Time) error

	// Delete removes the account; its tokens go with it (ON DELETE CASCADE).
	Delete(ctx context.Context, id string) error
}
