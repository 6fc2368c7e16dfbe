package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// CacheStore keeps history in an in-process TTL cache.
type CacheStore struct {
	c          *cache.Cache
	maxEntries int
	mu         sync.Mutex
}

// NewCacheStore creates a CacheStore. Sessions idle longer than ttl are dropped;
// maxEntries bounds history per session.
func NewCacheStore(ttl time.Duration, maxEntries int) *CacheStore {
	if maxEntries <= 0 {
		maxEntries = 50
	}
	return &CacheStore{
		c:          cache.New(ttl, ttl*2),
		maxEntries: maxEntries,
	}
}

// Append records an exchange and refreshes the session's expiry.
func (s *CacheStore) Append(ctx context.Context, sessionID string, ex Exchange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []Exchange
	if v, ok := s.c.Get(sessionID); ok {
		history = v.([]Exchange)
	}
	next := make([]Exchange, 0, len(history)+1)
	next = append(next, history...)
	next = append(next, ex)
	if len(next) > s.maxEntries {
		next = next[len(next)-s.maxEntries:]
	}
	s.c.Set(sessionID, next, cache.DefaultExpiration)
	return nil
}

// History returns the most recent exchanges, oldest first.
func (s *CacheStore) History(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.c.Get(sessionID)
	if !ok {
		return []Exchange{}, nil
	}
	history := v.([]Exchange)
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Exchange, len(history))
	copy(out, history)
	return out, nil
}

// Clear removes the session's history.
func (s *CacheStore) Clear(_ context.Context, sessionID string) error {
	s.c.Delete(sessionID)
	return nil
}
