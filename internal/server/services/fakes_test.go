package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/requestlogs"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/tokens"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"
)

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- in-memory store ---

// memStore backs the fake repositories. It applies the same consumability
// rule as the SQL implementation but has no transactions.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	tokens   map[string]*models.Token
	order    map[string]int
	seq      int
	logs     []models.RequestLog
	now      func() time.Time

	// failNext makes the next repository call fail with this error.
	failNext error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		accounts: map[string]*models.Account{},
		tokens:   map[string]*models.Token{},
		order:    map[string]int{},
		now:      now,
	}
}

func (s *memStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *memStore) tokensOf(accountID string, typ models.TokenType) []*models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Token
	for _, t := range s.tokens {
		if t.AccountID == accountID && t.Type == typ {
			c := *t
			out = append(out, &c)
		}
	}
	return out
}

func (s *memStore) accountByEmail(email string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			c := *a
			return &c
		}
	}
	return nil
}

type fakeAccounts struct{ s *memStore }

func (f fakeAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return nil, err
	}
	for _, o := range f.s.accounts {
		if o.Email == a.Email || (a.Username != nil && o.Username != nil && *o.Username == *a.Username) {
			return nil, common.ErrorAlreadyExists
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = f.s.now()
	a.UpdatedAt = a.CreatedAt
	c := *a
	f.s.accounts[a.ID] = &c
	f.s.seq++
	f.s.order[a.ID] = f.s.seq
	return a, nil
}

func (f fakeAccounts) get(match func(*models.Account) bool) (*models.Account, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return nil, err
	}
	for _, a := range f.s.accounts {
		if match(a) {
			c := *a
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	return f.get(func(a *models.Account) bool { return a.ID == id })
}

func (f fakeAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return f.get(func(a *models.Account) bool { return a.Email == email })
}

func (f fakeAccounts) List(_ context.Context, limit, offset int) ([]*models.Account, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return nil, err
	}
	all := make([]*models.Account, 0, len(f.s.accounts))
	for _, a := range f.s.accounts {
		c := *a
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return f.s.order[all[i].ID] > f.s.order[all[j].ID] })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (f fakeAccounts) Count(context.Context) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return 0, err
	}
	return int64(len(f.s.accounts)), nil
}

func (f fakeAccounts) update(id string, fn func(*models.Account)) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return err
	}
	a, ok := f.s.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(a)
	return nil
}

func (f fakeAccounts) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	return f.update(id, func(a *models.Account) {
		if a.EmailVerifiedAt == nil {
			a.EmailVerifiedAt = &at
		}
		a.UpdatedAt = at
	})
}

func (f fakeAccounts) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	return f.update(id, func(a *models.Account) { a.PasswordHash, a.UpdatedAt = hash, at })
}

func (f fakeAccounts) UpdateRole(_ context.Context, id string, role models.Role, at time.Time) error {
	return f.update(id, func(a *models.Account) { a.Role, a.UpdatedAt = role, at })
}

func (f fakeAccounts) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return err
	}
	if _, ok := f.s.accounts[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.s.accounts, id)
	for tid, t := range f.s.tokens {
		if t.AccountID == id {
			delete(f.s.tokens, tid)
		}
	}
	return nil
}

type fakeTokens struct{ s *memStore }

func (f fakeTokens) Create(_ context.Context, t *models.Token) (*models.Token, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return nil, err
	}
	t.ID = uuid.NewString()
	t.CreatedAt = f.s.now()
	c := *t
	f.s.tokens[t.ID] = &c
	f.s.seq++
	f.s.order[t.ID] = f.s.seq
	return t, nil
}

func (f fakeTokens) Consume(_ context.Context, hash string, typ models.TokenType, now time.Time) (*models.Token, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return nil, err
	}
	for _, t := range f.s.tokens {
		if t.TokenHash == hash && t.Consumable(typ, now) {
			t.Revoked = true
			t.UsedAt = &now
			c := *t
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f fakeTokens) revokeWhere(now time.Time, match func(*models.Token) bool) int64 {
	var n int64
	for _, t := range f.s.tokens {
		if match(t) {
			t.Revoked = true
			if t.UsedAt == nil {
				t.UsedAt = &now
			}
			n++
		}
	}
	return n
}

func (f fakeTokens) RevokeByHash(_ context.Context, hash string, typ models.TokenType, now time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return false, err
	}
	n := f.revokeWhere(now, func(t *models.Token) bool {
		return t.TokenHash == hash && t.Type == typ && !t.Revoked
	})
	return n > 0, nil
}

func (f fakeTokens) ListActive(_ context.Context, accountID string, typ models.TokenType, limit int) ([]models.Session, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return nil, err
	}
	var live []*models.Token
	for _, t := range f.s.tokens {
		if t.AccountID == accountID && t.Type == typ && !t.Revoked {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool { return f.s.order[live[i].ID] > f.s.order[live[j].ID] })
	if len(live) > limit {
		live = live[:limit]
	}
	out := make([]models.Session, 0, len(live))
	for _, t := range live {
		out = append(out, models.Session{ID: t.ID, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt, IP: t.IP, UserAgent: t.UserAgent})
	}
	return out, nil
}

func (f fakeTokens) RevokeOwned(_ context.Context, id, accountID string, typ models.TokenType, now time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return false, err
	}
	n := f.revokeWhere(now, func(t *models.Token) bool {
		return t.ID == id && t.AccountID == accountID && t.Type == typ && !t.Revoked
	})
	return n > 0, nil
}

func (f fakeTokens) Revoke(_ context.Context, id string, now time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return false, err
	}
	_, ok := f.s.tokens[id]
	f.revokeWhere(now, func(t *models.Token) bool { return t.ID == id })
	return ok, nil
}

func (f fakeTokens) RevokeAllForAccount(_ context.Context, accountID string, typ models.TokenType, now time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.takeFailure(); err != nil {
		return 0, err
	}
	return f.revokeWhere(now, func(t *models.Token) bool {
		return t.AccountID == accountID && t.Type == typ && !t.Revoked
	}), nil
}

func (f fakeTokens) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for id, t := range f.s.tokens {
		if t.ExpiresAt.Before(before) || (t.Revoked && t.UsedAt != nil && t.UsedAt.Before(before)) {
			delete(f.s.tokens, id)
			n++
		}
	}
	return n, nil
}

type fakeRequestLogs struct{ s *memStore }

func (f fakeRequestLogs) Create(_ context.Context, e *models.RequestLog) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.seq++
	e.ID = int64(f.s.seq)
	f.s.logs = append(f.s.logs, *e)
	return nil
}

func (f fakeRequestLogs) List(_ context.Context, limit, offset int) ([]models.RequestLog, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []models.RequestLog
	for i := len(f.s.logs) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.s.logs[i])
	}
	return out, nil
}

func (f fakeRequestLogs) Count(context.Context) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return int64(len(f.s.logs)), nil
}

type fakeRepoManager struct{ s *memStore }

func (m fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository       { return fakeAccounts{m.s} }
func (m fakeRepoManager) Tokens(dbx.DBTX) tokens.Repository           { return fakeTokens{m.s} }
func (m fakeRepoManager) RequestLogs(dbx.DBTX) requestlogs.Repository { return fakeRequestLogs{m.s} }

// --- mailer and events ---

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Dispatch(_ context.Context, to, subject, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
}

func (m *fakeMailer) last() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// tokenFromMail extracts the token query parameter of the mailed link.
func tokenFromMail(t *testing.T, m sentMail) string {
	t.Helper()
	i := strings.Index(m.body, "?token=")
	if i < 0 {
		t.Fatalf("no token link in mail body %q", m.body)
	}
	return strings.TrimSpace(m.body[i+len("?token="):])
}

type countingEvents struct {
	mu     sync.Mutex
	counts map[string]int
}

func (e *countingEvents) AuthEvent(op, result string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.counts == nil {
		e.counts = map[string]int{}
	}
	e.counts[op+"/"+result]++
}

func (e *countingEvents) get(key string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[key]
}

// --- wiring ---

// newTxDB returns an empty in-memory SQLite database. The fake repositories
// ignore it; it only gives dbx.WithTx something to begin and commit.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ResetMinDelay = 0
	return cfg
}

func testHasher(t *testing.T) *password.Hasher {
	t.Helper()
	h, err := password.NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

type authEnv struct {
	svc      *AuthService
	sessions *SessionService
	accounts *AccountService
	store    *memStore
	clock    *fakeClock
	codec    *auth.TokenCodec
	mailer   *fakeMailer
	events   *countingEvents
	db       *sql.DB
}

func newAuthEnv(t *testing.T, cfg *config.Config, deps AuthDeps) *authEnv {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	clk := newFakeClock()
	store := newMemStore(clk.Now)
	rm := fakeRepoManager{store}
	db := newTxDB(t)

	env := &authEnv{
		store:  store,
		clock:  clk,
		codec:  auth.NewTokenCodec([]byte(cfg.SecretKey), cfg.AccessTokenTTL, cfg.JWTIssuer, clk.Now),
		mailer: &fakeMailer{},
		events: &countingEvents{},
		db:     db,
	}

	deps.Hasher = testHasher(t)
	deps.Codec = env.codec
	deps.Mailer = env.mailer
	deps.Events = env.events
	deps.Now = clk.Now

	env.svc = NewAuthService(db, rm, cfg, deps)
	env.sessions = NewSessionService(db, rm, nil, clk.Now)
	env.accounts = NewAccountService(db, rm, deps.Hasher, clk.Now)
	return env
}
