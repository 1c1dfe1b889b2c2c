package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of a limiter operation.
type Result struct {
	Allowed    bool
	Count      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter bounds successful logins per identity within a sliding window.
// Allow is a single atomic check-then-record operation: when the window is
// already full the attempt is rejected without being recorded, so the
// threshold can never be exceeded by one.
//
// The same interface serves a mutex-guarded in-process map for
// single-instance deployments and a Redis-backed window for horizontally
// scaled ones; call sites do not change between the two.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
	Status(ctx context.Context, key string) (Result, error)
	Clear(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
}
