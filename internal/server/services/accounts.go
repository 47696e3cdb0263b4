package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination clamps page and limit and derives the page count.
func NewPagination(page, limit int, total int64) Pagination {
	page, limit = clampPage(page, limit)
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

type AccountPage struct {
	Users      []models.PublicAccount `json:"users"`
	Pagination Pagination             `json:"pagination"`
}

// AccountService reads and administers accounts.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *password.Hasher
	now         func() time.Time
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, hasher *password.Hasher, now func() time.Time) *AccountService {
	if now == nil {
		now = time.Now
	}
	return &AccountService{db: db, repomanager: m, hasher: hasher, now: now}
}

// Lookup returns the full account for an authenticated subject. Missing
// accounts yield common.ErrorNotFound.
func (s *AccountService) Lookup(ctx context.Context, id string) (*models.Account, error) {
	if checkID(id, "id") != nil {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Accounts(s.db).GetByID(ctx, id)
}

// Get returns the public view of account id.
func (s *AccountService) Get(ctx context.Context, id string) (*models.PublicAccount, error) {
	if err := checkID(id, "user id"); err != nil {
		return nil, err
	}
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, apperr.Internal(err)
	}
	p := a.Public()
	return &p, nil
}

// List returns accounts newest first.
func (s *AccountService) List(ctx context.Context, page, limit int) (*AccountPage, error) {
	page, limit = clampPage(page, limit)
	repo := s.repomanager.Accounts(s.db)

	total, err := repo.Count(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	list, err := repo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	users := make([]models.PublicAccount, 0, len(list))
	for _, a := range list {
		users = append(users, a.Public())
	}
	return &AccountPage{Users: users, Pagination: NewPagination(page, limit, total)}, nil
}

// Delete removes an account together with all of its tokens.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	if err := checkID(id, "user id"); err != nil {
		return err
	}
	if err := s.repomanager.Accounts(s.db).Delete(ctx, id); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal(err)
	}
	return nil
}

// EnsureAdmin creates an admin account, or promotes the account that
// already owns email and sets its password. It reports whether a new
// account was created.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, username, pw string) (bool, error) {
	email = normalizeEmail(email)
	if err := validateRequest(RegisterRequest{Email: email, Username: username, Password: pw}); err != nil {
		return false, err
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return false, apperr.Internal(err)
	}

	created := false
	now := s.now()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)
		existing, err := repo.GetByEmail(ctx, email)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			name := strings.TrimSpace(username)
			_, err := repo.Create(ctx, &models.Account{Email: email, Username: &name, Role: models.RoleAdmin, PasswordHash: hash})
			if errors.Is(err, common.ErrorAlreadyExists) {
				return apperr.UserExists()
			}
			created = err == nil
			return err
		case err != nil:
			return err
		}
		if err := repo.UpdateRole(ctx, existing.ID, models.RoleAdmin, now); err != nil {
			return err
		}
		return repo.UpdatePasswordHash(ctx, existing.ID, hash, now)
	})
	if err != nil {
		return false, apperr.From(err)
	}
	return created, nil
}
