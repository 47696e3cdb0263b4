// Package services contains server-side business logic: the auth state
// machine over accounts and opaque tokens, session management and account
// administration.
package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/abuse"
	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const (
	EmailVerifyTTL   = 24 * time.Hour
	PasswordResetTTL = 30 * time.Minute
)

// Mailer hands a message to background delivery. notify.Dispatcher
// implements it.
type Mailer interface {
	Dispatch(ctx context.Context, to, subject, body string)
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User models.PublicAccount `json:"user"`
	TokenPair

	// EmailVerificationToken is only filled when dev token return is on.
	EmailVerificationToken string `json:"emailVerificationToken,omitempty"`
}

type VerifyEmailResult struct {
	Verified bool `json:"verified"`
}

type ResetRequestResult struct {
	Sent       bool   `json:"sent"`
	ResetToken string `json:"resetToken,omitempty"`
}

type ResetPasswordResult struct {
	Reset bool `json:"reset"`
}

// AuthDeps are the collaborators of AuthService. Lockout, Mailer, Events,
// Log and Now are optional.
type AuthDeps struct {
	Hasher  *password.Hasher
	Codec   *auth.TokenCodec
	Lockout *abuse.Lockout
	Mailer  Mailer
	Events  EventRecorder
	Log     logging.Logger
	Now     func() time.Time
}

// AuthService runs register, login, refresh, logout, email verification and
// password reset. Every operation validates its request before touching
// storage and reports expected failures as *apperr.Error.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      *password.Hasher
	codec       *auth.TokenCodec
	lockout     *abuse.Lockout
	mailer      Mailer
	events      EventRecorder
	log         logging.Logger
	now         func() time.Time

	refreshTTL      time.Duration
	devReturnTokens bool
	appURL          string
	resetMinDelay   time.Duration
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, deps AuthDeps) *AuthService {
	s := &AuthService{
		db:              db,
		repomanager:     m,
		hasher:          deps.Hasher,
		codec:           deps.Codec,
		lockout:         deps.Lockout,
		mailer:          deps.Mailer,
		events:          deps.Events,
		log:             deps.Log,
		now:             deps.Now,
		refreshTTL:      cfg.RefreshTokenTTL(),
		devReturnTokens: cfg.DevReturnTokens,
		appURL:          cfg.AppURL,
		resetMinDelay:   cfg.ResetMinDelay,
	}
	if s.events == nil {
		s.events = nopRecorder{}
	}
	if s.log == nil {
		s.log = logging.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register creates an account and returns it with a fresh token pair. The
// account row and its EMAIL_VERIFY and REFRESH tokens are written in one
// transaction; the verification mail is sent in the background.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, meta models.ClientMeta) (res *AuthResult, err error) {
	defer func() { s.events.AuthEvent("register", outcome(err)) }()

	req.Email = normalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now()
	username := req.Username
	account := &models.Account{Email: req.Email, Username: &username, Role: models.RoleUser, PasswordHash: hash}

	var verifyToken, refreshToken string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Accounts(tx).Create(ctx, account); err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return apperr.UserExists()
			}
			return apperr.Internal(err)
		}

		var err error
		verifyToken, err = s.issueToken(ctx, tx, account.ID, models.TokenTypeEmailVerify, now.Add(EmailVerifyTTL), nil)
		if err != nil {
			return err
		}
		refreshToken, err = s.issueRefreshToken(ctx, tx, account.ID, now, meta)
		return err
	})
	if err != nil {
		return nil, apperr.From(err)
	}

	access, err := s.codec.SignAccess(account.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	subject, body := notify.VerifyEmailMessage(s.appURL, username, verifyToken)
	s.notify(ctx, account.Email, subject, body)

	res = &AuthResult{
		User:      account.Public(),
		TokenPair: TokenPair{AccessToken: access, RefreshToken: refreshToken},
	}
	if s.devReturnTokens {
		res.EmailVerificationToken = verifyToken
	}
	s.log.Info(ctx, "account registered", "account_id", account.ID)
	return res, nil
}

// Login checks credentials and issues a token pair. Unknown accounts and
// wrong passwords fail alike, after the same bcrypt effort. A locked email
// is refused before credentials are evaluated.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, meta models.ClientMeta) (res *AuthResult, err error) {
	defer func() { s.events.AuthEvent("login", outcome(err)) }()

	req.Email = normalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if s.lockout != nil {
		if ttl := s.lockout.Check(ctx, req.Email); ttl > 0 {
			return nil, apperr.LoginLocked(ttl)
		}
	}

	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, apperr.Internal(err)
		}
		s.hasher.EqualizeTiming(req.Password)
		return nil, s.loginFailed(ctx, req.Email)
	}

	ok, err := s.hasher.Verify(req.Password, account.PasswordHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, s.loginFailed(ctx, req.Email)
	}

	if s.lockout != nil {
		s.lockout.Reset(ctx, req.Email)
	}

	access, err := s.codec.SignAccess(account.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	refresh, err := s.issueRefreshToken(ctx, s.db, account.ID, s.now(), meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:      account.Public(),
		TokenPair: TokenPair{AccessToken: access, RefreshToken: refresh},
	}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email string) error {
	if s.lockout != nil {
		s.lockout.RecordFailure(ctx, email)
	}
	return apperr.InvalidCredentials()
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// one carrying meta is issued in the same transaction. A token can be
// rotated once; replays fail with INVALID_TOKEN.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest, meta models.ClientMeta) (pair *TokenPair, err error) {
	defer func() { s.events.AuthEvent("refresh", outcome(err)) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	now := s.now()
	hash := auth.HashOpaque(req.RefreshToken)

	var accountID, refresh string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		old, err := s.repomanager.Tokens(tx).Consume(ctx, hash, models.TokenTypeRefresh, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apperr.InvalidToken(http.StatusUnauthorized)
			}
			return apperr.Internal(err)
		}
		accountID = old.AccountID
		refresh, err = s.issueRefreshToken(ctx, tx, accountID, now, meta)
		return err
	})
	if err != nil {
		return nil, apperr.From(err)
	}

	access, err := s.codec.SignAccess(accountID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes a refresh token. Unknown and already revoked tokens are
// not an error.
func (s *AuthService) Logout(ctx context.Context, req RefreshRequest) (err error) {
	defer func() { s.events.AuthEvent("logout", outcome(err)) }()

	if err := validateRequest(req); err != nil {
		return err
	}

	revoked, err := s.repomanager.Tokens(s.db).RevokeByHash(ctx, auth.HashOpaque(req.RefreshToken), models.TokenTypeRefresh, s.now())
	if err != nil {
		return apperr.Internal(err)
	}
	s.log.Debug(ctx, "logout", "revoked", revoked)
	return nil
}

// VerifyEmail consumes an EMAIL_VERIFY token and marks the account verified.
// Both writes commit together or not at all.
func (s *AuthService) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (res *VerifyEmailResult, err error) {
	defer func() { s.events.AuthEvent("verify_email", outcome(err)) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	now := s.now()
	hash := auth.HashOpaque(req.Token)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tok, err := s.repomanager.Tokens(tx).Consume(ctx, hash, models.TokenTypeEmailVerify, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apperr.InvalidToken(http.StatusBadRequest)
			}
			return apperr.Internal(err)
		}
		if err := s.repomanager.Accounts(tx).MarkEmailVerified(ctx, tok.AccountID, now); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.From(err)
	}
	return &VerifyEmailResult{Verified: true}, nil
}

// RequestPasswordReset issues a PASSWORD_RESET token when the email belongs
// to an account and mails it. The answer is the same either way and takes
// at least the configured minimum delay, so it does not reveal whether the
// account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, req ResetRequestRequest) (res *ResetRequestResult, err error) {
	defer func() { s.events.AuthEvent("password_reset_request", outcome(err)) }()

	req.Email = normalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	defer s.waitAtLeast(ctx, start, s.resetMinDelay)

	res = &ResetRequestResult{Sent: true}

	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return res, nil
		}
		return nil, apperr.Internal(err)
	}

	token, err := s.issueToken(ctx, s.db, account.ID, models.TokenTypePasswordReset, s.now().Add(PasswordResetTTL), nil)
	if err != nil {
		return nil, err
	}

	subject, body := notify.PasswordResetMessage(s.appURL, token, PasswordResetTTL)
	s.notify(ctx, account.Email, subject, body)

	if s.devReturnTokens {
		res.ResetToken = token
	}
	return res, nil
}

// ResetPassword consumes a PASSWORD_RESET token and sets the new password.
// All refresh tokens of the account are revoked in the same transaction.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) (res *ResetPasswordResult, err error) {
	defer func() { s.events.AuthEvent("password_reset", outcome(err)) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	newHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now()
	hash := auth.HashOpaque(req.Token)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tok, err := s.repomanager.Tokens(tx).Consume(ctx, hash, models.TokenTypePasswordReset, now)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apperr.InvalidToken(http.StatusBadRequest)
			}
			return apperr.Internal(err)
		}
		if err := s.repomanager.Accounts(tx).UpdatePasswordHash(ctx, tok.AccountID, newHash, now); err != nil {
			return apperr.Internal(err)
		}
		if _, err := s.repomanager.Tokens(tx).RevokeAllForAccount(ctx, tok.AccountID, models.TokenTypeRefresh, now); err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.From(err)
	}
	return &ResetPasswordResult{Reset: true}, nil
}

// --- helpers below ---

func (s *AuthService) issueRefreshToken(ctx context.Context, db dbx.DBTX, accountID string, now time.Time, meta models.ClientMeta) (string, error) {
	return s.issueToken(ctx, db, accountID, models.TokenTypeRefresh, now.Add(s.refreshTTL), &meta)
}

// issueToken stores the hash of a fresh opaque secret and returns the
// secret. It is never persisted or logged in plaintext.
func (s *AuthService) issueToken(ctx context.Context, db dbx.DBTX, accountID string, typ models.TokenType, expiresAt time.Time, meta *models.ClientMeta) (string, error) {
	secret, err := auth.GenerateOpaque()
	if err != nil {
		return "", apperr.Internal(err)
	}

	token := &models.Token{
		AccountID: accountID,
		Type:      typ,
		TokenHash: auth.HashOpaque(secret),
		ExpiresAt: expiresAt,
	}
	if meta != nil {
		token.IP = optional(meta.IP)
		token.UserAgent = optional(meta.UserAgent)
	}

	if _, err := s.repomanager.Tokens(db).Create(ctx, token); err != nil {
		return "", apperr.Internal(err)
	}
	return secret, nil
}

func (s *AuthService) notify(ctx context.Context, to, subject, body string) {
	if s.mailer == nil {
		return
	}
	s.mailer.Dispatch(ctx, to, subject, body)
}

// waitAtLeast blocks until d has passed since start or ctx is done.
func (s *AuthService) waitAtLeast(ctx context.Context, start time.Time, d time.Duration) {
	remaining := d - time.Since(start)
	if remaining <= 0 {
		return
	}
	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
