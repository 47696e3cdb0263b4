package abuse

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Rule allows Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Limiter applies fixed-window rules. A failing store lets requests through.
type Limiter struct {
	store Store
	log   logging.Logger
}

func NewLimiter(store Store, log logging.Logger) *Limiter {
	if log == nil {
		log = logging.Nop{}
	}
	return &Limiter{store: store, log: log}
}

// Allow counts one request for key under the named rule. When the rule is
// exhausted it returns false and the time until the window resets.
func (l *Limiter) Allow(ctx context.Context, name string, rule Rule, key string) (bool, time.Duration) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return true, 0
	}
	count, ttl, err := l.store.Incr(ctx, "rl:"+name+":"+key, rule.Window)
	if err != nil {
		l.log.Warn(ctx, "rate limiter unavailable, allowing request", "rule", name, "error", err)
		return true, 0
	}
	if count > int64(rule.Limit) {
		return false, ttl
	}
	return true, 0
}
