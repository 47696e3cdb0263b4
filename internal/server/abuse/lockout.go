package abuse

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// LockoutPolicy locks an identifier once Threshold failures happen within
// Window. Each failure at or past the threshold doubles the lock, starting
// at BaseBackoff and never exceeding MaxBackoff.
type LockoutPolicy struct {
	Threshold   int
	Window      time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Backoff returns the lock duration after the given number of strikes,
// zero below the threshold.
func (p LockoutPolicy) Backoff(strikes int64) time.Duration {
	if p.Threshold <= 0 || strikes < int64(p.Threshold) {
		return 0
	}
	d := p.BaseBackoff
	for i := int64(p.Threshold); i < strikes && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Lockout tracks failed logins per identifier.
type Lockout struct {
	store  Store
	policy LockoutPolicy
	log    logging.Logger
}

func NewLockout(store Store, policy LockoutPolicy, log logging.Logger) *Lockout {
	if log == nil {
		log = logging.Nop{}
	}
	return &Lockout{store: store, policy: policy, log: log}
}

func strikesKey(id string) string { return "lo:strikes:" + id }
func lockKey(id string) string    { return "lo:lock:" + id }

// Check returns the remaining lock time of id, zero when logins are allowed.
func (l *Lockout) Check(ctx context.Context, id string) time.Duration {
	ttl, err := l.store.LockTTL(ctx, lockKey(id))
	if err != nil {
		l.log.Warn(ctx, "lockout store unavailable, skipping check", "error", err)
		return 0
	}
	return ttl
}

// RecordFailure adds a strike for id and locks it when the policy says so.
// It returns the lock applied, zero when none.
func (l *Lockout) RecordFailure(ctx context.Context, id string) time.Duration {
	strikes, _, err := l.store.Incr(ctx, strikesKey(id), l.policy.Window)
	if err != nil {
		l.log.Warn(ctx, "lockout store unavailable, strike not recorded", "error", err)
		return 0
	}
	d := l.policy.Backoff(strikes)
	if d <= 0 {
		return 0
	}
	if err := l.store.SetLock(ctx, lockKey(id), d); err != nil {
		l.log.Warn(ctx, "lockout store unavailable, lock not set", "error", err)
		return 0
	}
	l.log.Info(ctx, "login locked", "strikes", strikes, "backoff", d.String())
	return d
}

// Reset clears strikes and lock for id after a successful login.
func (l *Lockout) Reset(ctx context.Context, id string) {
	if err := l.store.Del(ctx, strikesKey(id), lockKey(id)); err != nil {
		l.log.Warn(ctx, "lockout store unavailable, reset skipped", "error", err)
	}
}
