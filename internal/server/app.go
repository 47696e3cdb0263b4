// Package server wires the authkeeper components together and runs the HTTP
// API, the gRPC health service and the token sweeper until a shutdown
// signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/abuse"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/password"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/dmitrijs2005/authkeeper/internal/server/sweeper"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/authkeeper/internal/server/grpc"
)

const (
	memoryStoreSize   = 100_000
	redisKeyPrefix    = "authkeeper:"
	readHeaderTimeout = 10 * time.Second
)

var poolOptions = dbx.PoolOptions{
	MaxOpenConns:    25,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
	PingTimeout:     5 * time.Second,
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	rdb     redis.UniversalClient
	api     *httpapi.API
	sweeper *sweeper.Sweeper
	grpc    *gs.GRPCServer
}

// NewApp opens the database, applies migrations and builds every service.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := dbx.Open(ctx, repomanager.DriverName, c.DatabaseDSN, poolOptions)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	store, rdb, err := newAbuseStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	hasher, err := newHasher(ctx, c.BcryptCost, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	codec := auth.NewTokenCodec([]byte(c.SecretKey), c.AccessTokenTTL, c.JWTIssuer, nil)

	m := metrics.New()
	if err := m.RegisterDB(db, "authkeeper"); err != nil {
		logger.Warn(ctx, "db stats collector not registered", "error", err)
	}

	lockout := abuse.NewLockout(store, abuse.LockoutPolicy{
		Threshold:   c.LockoutThreshold,
		Window:      c.LockoutWindow,
		BaseBackoff: c.LockoutBaseBackoff,
		MaxBackoff:  c.LockoutMaxBackoff,
	}, logger)
	mailer := notify.NewDispatcher(newNotifier(c, logger), logger, c.NotifyTimeout)

	authSvc := services.NewAuthService(db, rm, c, services.AuthDeps{
		Hasher:  hasher,
		Codec:   codec,
		Lockout: lockout,
		Mailer:  mailer,
		Events:  m,
		Log:     logger.With("module", "auth"),
	})
	accounts := services.NewAccountService(db, rm, hasher, nil)

	api := httpapi.NewAPI(c, httpapi.Deps{
		Auth:     authSvc,
		Sessions: services.NewSessionService(db, rm, logger, nil),
		Accounts: accounts,
		Logs:     services.NewLogService(db, rm),
		Codec:    codec,
		Limiter:  abuse.NewLimiter(store, logger),
		Metrics:  m,
		DB:       db,
		Log:      logger.With("module", "http"),
	})

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		rdb:     rdb,
		api:     api,
		sweeper: sweeper.New(rm.Tokens(db), c.SweepInterval, c.TokenRetention, logger.With("module", "sweeper"), nil),
		grpc:    gs.NewGRPCServer(c.EndpointAddrGRPC, logger, db),
	}, nil
}

// newAbuseStore picks Redis when an address is configured and an in-process
// LRU otherwise.
func newAbuseStore(ctx context.Context, c *config.Config) (abuse.Store, redis.UniversalClient, error) {
	if c.RedisAddr == "" {
		return abuse.NewMemoryStore(memoryStoreSize, longestWindow(c), nil), nil, nil
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{c.RedisAddr},
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis init error: %w", err)
	}
	return abuse.NewRedisStore(rdb, redisKeyPrefix), rdb, nil
}

// longestWindow bounds how long the memory store keeps any key.
func longestWindow(c *config.Config) time.Duration {
	rl := c.RateLimits
	d := c.LockoutWindow
	for _, w := range []time.Duration{
		rl.Register.Window, rl.Login.Window, rl.Refresh.Window, rl.Password.Window, rl.Global.Window,
		c.LockoutMaxBackoff,
	} {
		if w > d {
			d = w
		}
	}
	if d <= 0 {
		d = time.Hour
	}
	return d
}

func newNotifier(c *config.Config, logger logging.Logger) notify.Notifier {
	if c.SMTPHost == "" {
		return notify.NewLogNotifier(logger)
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.EmailFrom,
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "stopping HTTP server")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			app.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "starting HTTP server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is canceled or a shutdown signal arrives, then drains
// in-flight work and releases the database and Redis connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")
	app.initSignalHandler(cancelFunc)

	if err := app.sweeper.Start(); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	if err := app.sweeper.Stop(sctx); err != nil {
		app.logger.Warn(ctx, "sweeper did not stop in time", "error", err)
	}
	app.api.Wait()
	app.close()
	app.logger.Info(context.Background(), "app stopped")
}

func (app *App) close() {
	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Warn(context.Background(), "redis close", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(context.Background(), "db close", "error", err)
	}
}

// newHasher builds the password hasher and logs the effective bcrypt cost,
// warning when the configured one was outside bcrypt's range.
func newHasher(ctx context.Context, cost int, logger logging.Logger) (*password.Hasher, error) {
	h, err := password.NewHasher(cost)
	if err != nil {
		return nil, err
	}
	if cost != 0 && h.Cost() != cost {
		logger.Warn(ctx, "bcrypt cost clamped", "configured", cost, "cost", h.Cost())
	}
	logger.Info(ctx, "password hasher ready", "bcrypt_cost", h.Cost())
	return h, nil
}
