// Package httpapi exposes the auth services as an HTTP+JSON API under /api.
//
// Every response uses one envelope:
//
//	{"success":true,"data":{...},"requestId":"..."}
//	{"success":false,"error":{"status":401,"code":"INVALID_TOKEN","message":"...","requestId":"..."}}
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/abuse"
	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gorilla/mux"
)

// AuthService is implemented by *services.AuthService.
type AuthService interface {
	Register(ctx context.Context, req services.RegisterRequest, meta models.ClientMeta) (*services.AuthResult, error)
	Login(ctx context.Context, req services.LoginRequest, meta models.ClientMeta) (*services.AuthResult, error)
	Refresh(ctx context.Context, req services.RefreshRequest, meta models.ClientMeta) (*services.TokenPair, error)
	Logout(ctx context.Context, req services.RefreshRequest) error
	VerifyEmail(ctx context.Context, req services.VerifyEmailRequest) (*services.VerifyEmailResult, error)
	RequestPasswordReset(ctx context.Context, req services.ResetRequestRequest) (*services.ResetRequestResult, error)
	ResetPassword(ctx context.Context, req services.ResetPasswordRequest) (*services.ResetPasswordResult, error)
}

// SessionService is implemented by *services.SessionService.
type SessionService interface {
	ListSessions(ctx context.Context, accountID string) (*services.SessionList, error)
	AdminListSessions(ctx context.Context, accountID string) (*services.SessionList, error)
	RevokeOwnSession(ctx context.Context, accountID, tokenID string) (*services.RevokeResult, error)
	AdminRevokeSession(ctx context.Context, tokenID string) (*services.RevokeResult, error)
}

// AccountService is implemented by *services.AccountService.
type AccountService interface {
	Lookup(ctx context.Context, id string) (*models.Account, error)
	Get(ctx context.Context, id string) (*models.PublicAccount, error)
	List(ctx context.Context, page, limit int) (*services.AccountPage, error)
	Delete(ctx context.Context, id string) error
}

// LogService is implemented by *services.LogService.
type LogService interface {
	Record(ctx context.Context, entry *models.RequestLog) error
	List(ctx context.Context, page, limit int) (*services.LogPage, error)
}

// Pinger reports database reachability; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the API. Limiter, Metrics, Logs, DB, Log
// and Now are optional.
type Deps struct {
	Auth     AuthService
	Sessions SessionService
	Accounts AccountService
	Logs     LogService
	Codec    *auth.TokenCodec
	Limiter  *abuse.Limiter
	Metrics  *metrics.Metrics
	DB       Pinger
	Log      logging.Logger
	Now      func() time.Time
}

// API routes HTTP requests to the services.
type API struct {
	cfg      *config.Config
	auth     AuthService
	sessions SessionService
	accounts AccountService
	logs     LogService
	codec    *auth.TokenCodec
	limiter  *abuse.Limiter
	metrics  *metrics.Metrics
	db       Pinger
	log      logging.Logger
	now      func() time.Time
	started  time.Time

	router  *mux.Router
	handler http.Handler

	// wg tracks background request log writes.
	wg sync.WaitGroup
}

func NewAPI(cfg *config.Config, d Deps) *API {
	a := &API{
		cfg:      cfg,
		auth:     d.Auth,
		sessions: d.Sessions,
		accounts: d.Accounts,
		logs:     d.Logs,
		codec:    d.Codec,
		limiter:  d.Limiter,
		metrics:  d.Metrics,
		db:       d.DB,
		log:      d.Log,
		now:      d.Now,
	}
	if a.log == nil {
		a.log = logging.Nop{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	a.started = a.now()
	a.router = a.routes()
	a.handler = requestID(a.recoverer(a.observe(a.router)))
	return a
}

// Handler returns the root handler with request id, recovery and
// observation middleware applied.
func (a *API) Handler() http.Handler {
	return a.handler
}

// Wait blocks until pending request log writes finish.
func (a *API) Wait() {
	a.wg.Wait()
}

func (a *API) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(a.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(a.notFound)

	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = http.HandlerFunc(a.notFound)
	api.Use(a.rateLimit("global", a.cfg.RateLimits.Global))

	rl := a.cfg.RateLimits
	admin := func(h http.HandlerFunc) http.Handler {
		return a.bearer(a.requireRole(models.RoleAdmin)(h))
	}

	ar := api.PathPrefix("/auth").Subrouter()
	ar.Handle("/register", a.rateLimit("register", rl.Register)(http.HandlerFunc(a.register))).Methods(http.MethodPost)
	ar.Handle("/login", a.rateLimit("login", rl.Login)(http.HandlerFunc(a.login))).Methods(http.MethodPost)
	ar.Handle("/refresh", a.rateLimit("refresh", rl.Refresh)(http.HandlerFunc(a.refresh))).Methods(http.MethodPost)
	ar.HandleFunc("/logout", a.logout).Methods(http.MethodPost)
	ar.Handle("/verify-email", a.rateLimit("password", rl.Password)(http.HandlerFunc(a.verifyEmail))).Methods(http.MethodPost)
	ar.Handle("/password/reset-request", a.rateLimit("password", rl.Password)(http.HandlerFunc(a.requestPasswordReset))).Methods(http.MethodPost)
	ar.Handle("/password/reset", a.rateLimit("password", rl.Password)(http.HandlerFunc(a.resetPassword))).Methods(http.MethodPost)

	// /sessions/me must be registered before /sessions/{userId}.
	ar.Handle("/sessions/me", a.bearer(http.HandlerFunc(a.listOwnSessions))).Methods(http.MethodGet)
	ar.Handle("/sessions/me/{id}", a.bearer(http.HandlerFunc(a.revokeOwnSession))).Methods(http.MethodDelete)
	ar.Handle("/sessions/{userId}", admin(a.adminListSessions)).Methods(http.MethodGet)
	ar.Handle("/sessions/{id}", admin(a.adminRevokeSession)).Methods(http.MethodDelete)

	api.Handle("/users/me", a.bearer(http.HandlerFunc(a.me))).Methods(http.MethodGet)
	api.Handle("/users", admin(a.listUsers)).Methods(http.MethodGet)
	api.Handle("/users/{id}", admin(a.getUser)).Methods(http.MethodGet)
	api.Handle("/users/{id}", admin(a.deleteUser)).Methods(http.MethodDelete)

	api.HandleFunc("/health", a.health).Methods(http.MethodGet)
	api.Handle("/logs", a.basic(http.HandlerFunc(a.listLogs))).Methods(http.MethodGet)

	return r
}

func (a *API) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, a.log, apperr.NotFound("route not found"))
}
