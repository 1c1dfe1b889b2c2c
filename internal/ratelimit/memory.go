package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryLimiter keeps per-identity attempt timestamps in a mutex-guarded map.
// Entries older than the window are pruned lazily on every call; a periodic
// sweep additionally drops identities whose window emptied, bounding memory
// to currently-active identities. The sweep is advisory cleanup only;
// correctness comes from the lazy prune inside Allow.
type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time

	max           int
	window        time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// MemoryConfig configures the in-process limiter.
type MemoryConfig struct {
	MaxAttempts   int
	Window        time.Duration
	SweepInterval time.Duration
	Logger        *zap.Logger

	// Clock is injectable for window tests; defaults to time.Now.
	Clock func() time.Time
}

// NewMemoryLimiter builds a limiter with the given window and threshold.
func NewMemoryLimiter(cfg MemoryConfig) *MemoryLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 15 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &MemoryLimiter{
		attempts:      make(map[string][]time.Time),
		max:           cfg.MaxAttempts,
		window:        cfg.Window,
		sweepInterval: cfg.SweepInterval,
		now:           now,
		logger:        cfg.Logger,
	}
}

// Allow prunes stale attempts and, when the window still has room, records
// the current attempt. Rejections do not consume a slot.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.pruneLocked(key, now)

	if len(kept) >= l.max {
		return Result{
			Allowed:    false,
			Count:      len(kept),
			Remaining:  0,
			RetryAfter: kept[0].Add(l.window).Sub(now),
		}, nil
	}

	l.attempts[key] = append(kept, now)
	return Result{
		Allowed:   true,
		Count:     len(kept) + 1,
		Remaining: l.max - len(kept) - 1,
	}, nil
}

// Status reports the current window without recording an attempt.
func (l *MemoryLimiter) Status(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.pruneLocked(key, now)

	res := Result{
		Allowed:   len(kept) < l.max,
		Count:     len(kept),
		Remaining: l.max - len(kept),
	}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed && len(kept) > 0 {
		res.RetryAfter = kept[0].Add(l.window).Sub(now)
	}
	return res, nil
}

// Clear resets the window for one identity.
func (l *MemoryLimiter) Clear(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
	return nil
}

// ClearAll resets every window.
func (l *MemoryLimiter) ClearAll(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = make(map[string][]time.Time)
	return nil
}

// Start runs the periodic sweep until the context is cancelled.
func (l *MemoryLimiter) Start(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Sweep prunes every identity's window and removes emptied identities.
func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	swept := 0
	for key := range l.attempts {
		if kept := l.pruneLocked(key, now); len(kept) == 0 {
			delete(l.attempts, key)
			swept++
		}
	}
	if swept > 0 {
		l.logger.Debug("rate limit sweep", zap.Int("identities_removed", swept))
	}
}

// pruneLocked drops attempts older than the window and stores the survivors.
// Callers must hold the mutex.
func (l *MemoryLimiter) pruneLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	kept := l.attempts[key][:0]
	for _, ts := range l.attempts[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, key)
		return nil
	}
	l.attempts[key] = kept
	return kept
}
