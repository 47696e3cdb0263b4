package services

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

type LogPage struct {
	Logs       []models.RequestLog `json:"logs"`
	Pagination Pagination          `json:"pagination"`
}

// LogService records served requests and pages through them.
type LogService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewLogService(db *sql.DB, m repomanager.RepositoryManager) *LogService {
	return &LogService{db: db, repomanager: m}
}

func (s *LogService) Record(ctx context.Context, entry *models.RequestLog) error {
	return s.repomanager.RequestLogs(s.db).Create(ctx, entry)
}

// List returns request logs newest first.
func (s *LogService) List(ctx context.Context, page, limit int) (*LogPage, error) {
	page, limit = clampPage(page, limit)
	repo := s.repomanager.RequestLogs(s.db)

	total, err := repo.Count(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logs, err := repo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if logs == nil {
		logs = []models.RequestLog{}
	}
	return &LogPage{Logs: logs, Pagination: NewPagination(page, limit, total)}, nil
}
