package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/abuse"
	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/stretchr/testify/require"
)

var errUnexpected = errors.New("unexpected call")

type fakeAuth struct {
	register func(services.RegisterRequest, models.ClientMeta) (*services.AuthResult, error)
	login    func(services.LoginRequest, models.ClientMeta) (*services.AuthResult, error)
	refresh  func(services.RefreshRequest, models.ClientMeta) (*services.TokenPair, error)
	logout   func(services.RefreshRequest) error
	verify   func(services.VerifyEmailRequest) (*services.VerifyEmailResult, error)
	resetReq func(services.ResetRequestRequest) (*services.ResetRequestResult, error)
	reset    func(services.ResetPasswordRequest) (*services.ResetPasswordResult, error)
}

func (f *fakeAuth) Register(_ context.Context, req services.RegisterRequest, meta models.ClientMeta) (*services.AuthResult, error) {
	if f.register == nil {
		return nil, apperr.Internal(errUnexpected)
	}
	return f.register(req, meta)
}

func (f *fakeAuth) Login(_ context.Context, req services.LoginRequest, meta models.ClientMeta) (*services.AuthResult, error) {
	if f.login == nil {
		return nil, apperr.Internal(errUnexpected)
	}
	return f.login(req, meta)
}

func (f *fakeAuth) Refresh(_ context.Context, req services.RefreshRequest, meta models.ClientMeta) (*services.TokenPair, error) {
	if f.refresh == nil {
		return nil, apperr.Internal(errUnexpected)
	}
	return f.refresh(req, meta)
}

func (f *fakeAuth) Logout(_ context.Context, req services.RefreshRequest) error {
	if f.logout == nil {
		return apperr.Internal(errUnexpected)
	}
	return f.logout(req)
}

func (f *fakeAuth) VerifyEmail(_ context.Context, req services.VerifyEmailRequest) (*services.VerifyEmailResult, error) {
	if f.verify == nil {
		return nil, apperr.Internal(errUnexpected)
	}
	return f.verify(req)
}

func (f *fakeAuth) RequestPasswordReset(_ context.Context, req services.ResetRequestRequest) (*services.ResetRequestResult, error) {
	if f.resetReq == nil {
		return nil, apperr.Internal(errUnexpected)
	}
	return f.resetReq(req)
}

func (f *fakeAuth) ResetPassword(_ context.Context, req services.ResetPasswordRequest) (*services.ResetPasswordResult, error) {
	if f.reset == nil {
		return nil, apperr.Internal(errUnexpected)
	}
	return f.reset(req)
}

type fakeSessions struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeSessions) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSessions) ListSessions(_ context.Context, accountID string) (*services.SessionList, error) {
	f.record("list:" + accountID)
	return &services.SessionList{Sessions: []models.Session{{ID: "s1"}}}, nil
}

func (f *fakeSessions) AdminListSessions(_ context.Context, accountID string) (*services.SessionList, error) {
	f.record("adminList:" + accountID)
	return &services.SessionList{Sessions: []models.Session{}}, nil
}

func (f *fakeSessions) RevokeOwnSession(_ context.Context, accountID, tokenID string) (*services.RevokeResult, error) {
	f.record("revokeOwn:" + accountID + ":" + tokenID)
	return &services.RevokeResult{Revoked: false}, nil
}

func (f *fakeSessions) AdminRevokeSession(_ context.Context, tokenID string) (*services.RevokeResult, error) {
	f.record("adminRevoke:" + tokenID)
	return &services.RevokeResult{Revoked: true}, nil
}

type fakeAccounts struct {
	byID map[string]*models.Account
}

func (f *fakeAccounts) Lookup(_ context.Context, id string) (*models.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (f *fakeAccounts) Get(_ context.Context, id string) (*models.PublicAccount, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	p := a.Public()
	return &p, nil
}

func (f *fakeAccounts) List(_ context.Context, page, limit int) (*services.AccountPage, error) {
	users := []models.PublicAccount{}
	for _, a := range f.byID {
		users = append(users, a.Public())
	}
	return &services.AccountPage{Users: users, Pagination: services.NewPagination(page, limit, int64(len(users)))}, nil
}

func (f *fakeAccounts) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return apperr.NotFound("user not found")
	}
	delete(f.byID, id)
	return nil
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []models.RequestLog
	page    [2]int
}

func (f *fakeLogs) Record(_ context.Context, e *models.RequestLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeLogs) List(_ context.Context, page, limit int) (*services.LogPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = [2]int{page, limit}
	return &services.LogPage{Logs: []models.RequestLog{}, Pagination: services.NewPagination(page, limit, 0)}, nil
}

func (f *fakeLogs) recorded() []models.RequestLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RequestLog(nil), f.entries...)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

const (
	userID  = "6f1c9f5e-8a55-4a7e-9a3b-1f6a1f0c2d11"
	adminID = "0b9d2f44-1c2e-4e57-8d6e-5a4c3b2a1900"
)

type testEnv struct {
	api      *API
	cfg      *config.Config
	auth     *fakeAuth
	sessions *fakeSessions
	accounts *fakeAccounts
	logs     *fakeLogs
	codec    *auth.TokenCodec
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, tweak func(*config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AdminUser, cfg.AdminPassword = "ops", "ops-secret"
	if tweak != nil {
		tweak(cfg)
	}

	env := &testEnv{
		cfg:      cfg,
		auth:     &fakeAuth{},
		sessions: &fakeSessions{},
		accounts: &fakeAccounts{byID: map[string]*models.Account{
			userID:  {ID: userID, Email: "user@x.com", Role: models.RoleUser, PasswordHash: "hash"},
			adminID: {ID: adminID, Email: "admin@x.com", Role: models.RoleAdmin, PasswordHash: "hash"},
		}},
		logs:    &fakeLogs{},
		codec:   auth.NewTokenCodec([]byte("test-secret"), 15*time.Minute, "authkeeper", nil),
		metrics: metrics.New(),
	}
	env.api = NewAPI(cfg, Deps{
		Auth:     env.auth,
		Sessions: env.sessions,
		Accounts: env.accounts,
		Logs:     env.logs,
		Codec:    env.codec,
		Limiter:  abuse.NewLimiter(abuse.NewMemoryStore(1000, time.Hour, nil), nil),
		Metrics:  env.metrics,
		DB:       fakePinger{},
	})
	t.Cleanup(env.api.Wait)
	return env
}

func (e *testEnv) bearerFor(t *testing.T, id string) string {
	t.Helper()
	tok, err := e.codec.SignAccess(id)
	require.NoError(t, err)
	return "Bearer " + tok
}

// do serves one request. body may be nil, a string or any JSON value.
func (e *testEnv) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(rec, req)
	return rec
}

type testEnvelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"requestId"`
	Error     *struct {
		Status    int    `json:"status"`
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code apperr.Code) testEnvelope {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.NotNil(t, env.Error)
	require.Equal(t, string(code), env.Error.Code)
	require.Equal(t, status, env.Error.Status)
	return env
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
