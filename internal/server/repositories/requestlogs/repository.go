// Package requestlogs stores one row per served HTTP request for the
// operator log endpoint.
package requestlogs

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, entry *models.RequestLog) error
	List(ctx context.Context, limit, offset int) ([]models.RequestLog, error)
	Count(ctx context.Context) (int64, error)
}
