package abuse

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type memEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore keeps counters in a bounded, expiring LRU. Limits are per
// process.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.LRU[string, memEntry]
	now   func() time.Time
}

// NewMemoryStore holds at most size keys. maxTTL bounds how long any key
// stays in memory and should cover the longest window or lock in use.
// now may be nil, meaning time.Now.
func NewMemoryStore(size int, maxTTL time.Duration, now func() time.Time) *MemoryStore {
	if size <= 0 {
		size = 10000
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		cache: lru.NewLRU[string, memEntry](size, nil, maxTTL),
		now:   now,
	}
}

// get returns the live entry for key, dropping it when expired.
func (s *MemoryStore) get(key string, now time.Time) (memEntry, bool) {
	e, ok := s.cache.Get(key)
	if !ok {
		return memEntry{}, false
	}
	if !now.Before(e.expiresAt) {
		s.cache.Remove(key)
		return memEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.get(key, now)
	if !ok {
		e = memEntry{expiresAt: now.Add(window)}
	}
	e.count++
	s.cache.Add(key, e)
	return e.count, e.expiresAt.Sub(now), nil
}

func (s *MemoryStore) SetLock(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Add(key, memEntry{count: 1, expiresAt: s.now().Add(ttl)})
	return nil
}

func (s *MemoryStore) LockTTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.get(key, now)
	if !ok {
		return 0, nil
	}
	return e.expiresAt.Sub(now), nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		s.cache.Remove(k)
	}
	return nil
}

// Len reports the number of tracked keys, expired ones included until they
// are touched or purged.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
