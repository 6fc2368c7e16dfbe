package session

import (
	"sync"
	"time"
)

// CleanupConfig holds the eviction sweep parameters.
type CleanupConfig struct {
	// Interval is how often to sweep (default: 1 minute).
	Interval time.Duration
	// Timeout is the session age after which entries are evicted (default: 5 minutes).
	Timeout time.Duration
}

// DefaultCleanupConfig returns the default sweep configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval: time.Minute,
		Timeout:  5 * time.Minute,
	}
}

// StartCleanupLoop starts a background goroutine that periodically evicts old sessions.
// Returns a stop function; calling it more than once is safe.
func (t *Tracker) StartCleanupLoop(cfg CleanupConfig) func() {
	defaults := DefaultCleanupConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	ticker := time.NewTicker(cfg.Interval)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-ticker.C:
				t.runCleanupCycle(cfg)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-stopped
		})
	}
}

// runCleanupCycle performs a single sweep with panic recovery.
func (t *Tracker) runCleanupCycle(cfg CleanupConfig) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("cleanup_panic_recovered", "error", r)
		}
	}()

	evicted := t.Cleanup(cfg.Timeout)
	t.logger.Debug("cleanup_cycle_completed",
		"sessions_evicted", evicted,
		"sessions_remaining", t.Len(),
	)
}
