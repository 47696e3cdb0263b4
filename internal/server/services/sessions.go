package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	OwnSessionsLimit   = 50
	AdminSessionsLimit = 100
)

type SessionList struct {
	Sessions []models.Session `json:"sessions"`
}

type RevokeResult struct {
	Revoked bool `json:"revoked"`
}

// SessionService lists and revokes the refresh tokens behind logged-in
// clients.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
	now         func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger, now func() time.Time) *SessionService {
	if log == nil {
		log = logging.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{db: db, repomanager: m, log: log, now: now}
}

// ListSessions returns the caller's non-revoked sessions, newest first.
func (s *SessionService) ListSessions(ctx context.Context, accountID string) (*SessionList, error) {
	return s.list(ctx, accountID, OwnSessionsLimit)
}

// AdminListSessions is ListSessions for any account, with a larger page.
func (s *SessionService) AdminListSessions(ctx context.Context, accountID string) (*SessionList, error) {
	if err := checkID(accountID, "user id"); err != nil {
		return nil, err
	}
	return s.list(ctx, accountID, AdminSessionsLimit)
}

// RevokeOwnSession revokes tokenID only if it is a live refresh token of
// accountID. Another account's id is reported exactly like an unknown one.
func (s *SessionService) RevokeOwnSession(ctx context.Context, accountID, tokenID string) (*RevokeResult, error) {
	if err := checkID(tokenID, "session id"); err != nil {
		return nil, err
	}
	ok, err := s.repomanager.Tokens(s.db).RevokeOwned(ctx, tokenID, accountID, models.TokenTypeRefresh, s.now())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &RevokeResult{Revoked: ok}, nil
}

// AdminRevokeSession revokes any token by id.
func (s *SessionService) AdminRevokeSession(ctx context.Context, tokenID string) (*RevokeResult, error) {
	if err := checkID(tokenID, "session id"); err != nil {
		return nil, err
	}
	ok, err := s.repomanager.Tokens(s.db).Revoke(ctx, tokenID, s.now())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if ok {
		s.log.Info(ctx, "session revoked by admin", "token_id", tokenID)
	}
	return &RevokeResult{Revoked: ok}, nil
}

func (s *SessionService) list(ctx context.Context, accountID string, limit int) (*SessionList, error) {
	sessions, err := s.repomanager.Tokens(s.db).ListActive(ctx, accountID, models.TokenTypeRefresh, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return &SessionList{Sessions: sessions}, nil
}

// checkID rejects ids that are not UUIDs before they reach the database.
func checkID(id, what string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.BadRequest("invalid " + what)
	}
	return nil
}
