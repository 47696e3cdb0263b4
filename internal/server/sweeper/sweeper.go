// Package sweeper periodically purges expired and revoked tokens.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/tokens"
	"github.com/robfig/cron/v3"
)

// Sweeper deletes tokens that expired, or were revoked, more than
// retention ago. It runs on a cron schedule until stopped.
type Sweeper struct {
	repo      tokens.Repository
	interval  time.Duration
	retention time.Duration
	log       logging.Logger
	now       func() time.Time
	cron      *cron.Cron
}

func New(repo tokens.Repository, interval, retention time.Duration, log logging.Logger, now func() time.Time) *Sweeper {
	if log == nil {
		log = logging.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	s := &Sweeper{repo: repo, interval: interval, retention: retention, log: log, now: now}
	cl := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Sweep runs one purge and returns the number of deleted tokens.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.repo.DeleteStale(ctx, cutoff)
	if err != nil {
		s.log.Error(ctx, "token sweep failed", "error", err)
		return 0, err
	}
	s.log.Info(ctx, "token sweep done", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// Start schedules Sweep every interval. A non-positive interval disables
// the sweeper.
func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		s.log.Info(context.Background(), "token sweeper disabled")
		return nil
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		_, _ = s.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule sweeper: %w", err)
	}
	s.cron.Start()
	s.log.Info(context.Background(), "token sweeper started", "interval", s.interval.String(), "retention", s.retention.String())
	return nil
}

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own messages into the server logger.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(context.Background(), "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(context.Background(), "cron: "+msg, append(keysAndValues, "error", err)...)
}
