package portalapi

import (
	"context"
	"sync"
	"time"
)

type RateLimiter struct {
	mu            sync.Mutex
	nextAllowedAt time.Time
	interval      time.Duration
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{interval: time.Second / time.Duration(requestsPerSecond)}
}

func (r *RateLimiter) reserve() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	scheduled := now
	if r.nextAllowedAt.After(now) {
		scheduled = r.nextAllowedAt
	}
	r.nextAllowedAt = scheduled.Add(r.interval)
	return scheduled
}

func (r *RateLimiter) Wait(ctx context.Context) error {
	sleep := time.Until(r.reserve())
	if sleep <= 0 {
		return ctx.Err()
	}
	return sleepCtx(ctx, sleep)
}
