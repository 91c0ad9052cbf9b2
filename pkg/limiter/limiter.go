// Package limiter provides a process-wide, per-host rate limiter.
//
// Specialized component to manage rate limiting during crawling.
// Responsibilities:
// - Bookkeep each hostname's token bucket
// - Block callers until a token is available or their deadline expires
// - Make sure the crawling process respects each server's configured rate
package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Stats are the counters the limiter exposes.
type Stats struct {
	Waits      int64
	WaitTimeMs int64
}

// RateLimiter is the per-host token-bucket acquisition port. Acquire
// blocks until a token is available or ctx is done, whichever comes
// first; the caller supplies the deadline via ctx.
type RateLimiter interface {
	Configure(host string, requestsPerSecond float64, burst int)
	Acquire(ctx context.Context, host string) error
	Stats() Stats
}

// ConcurrentRateLimiter is the process-wide RateLimiter
// implementation, shared across multiple fetchers: a mutex-guarded map
// keyed by hostname, lazily initialized on first use, with one
// golang.org/x/time/rate.Limiter per host.
type ConcurrentRateLimiter struct {
	mu    sync.RWMutex
	hosts map[string]*rate.Limiter

	defaultRPS   float64
	defaultBurst int

	waits      atomic.Int64
	waitTimeMs atomic.Int64
}

func NewConcurrentRateLimiter(defaultRequestsPerSecond float64, defaultBurst int) *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hosts:        make(map[string]*rate.Limiter),
		defaultRPS:   defaultRequestsPerSecond,
		defaultBurst: defaultBurst,
	}
}

var _ RateLimiter = (*ConcurrentRateLimiter)(nil)

// Configure sets or replaces host's bucket parameters. Calling it while
// requests are in flight is safe; the new limiter starts with a full
// burst allowance, mirroring rate.NewLimiter's own semantics.
func (r *ConcurrentRateLimiter) Configure(host string, requestsPerSecond float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hosts[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

func (r *ConcurrentRateLimiter) limiterFor(host string) *rate.Limiter {
	r.mu.RLock()
	l, exists := r.hosts[host]
	r.mu.RUnlock()
	if exists {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, exists := r.hosts[host]; exists {
		return l
	}
	l = rate.NewLimiter(rate.Limit(r.defaultRPS), r.defaultBurst)
	r.hosts[host] = l
	return l
}

// Acquire blocks until host's bucket yields a token or ctx is done. A
// wait is counted whenever the call does not return immediately.
func (r *ConcurrentRateLimiter) Acquire(ctx context.Context, host string) error {
	l := r.limiterFor(host)

	start := time.Now()
	err := l.Wait(ctx)
	waited := time.Since(start)

	if waited > 0 {
		r.waits.Add(1)
		r.waitTimeMs.Add(waited.Milliseconds())
	}

	return err
}

func (r *ConcurrentRateLimiter) Stats() Stats {
	return Stats{
		Waits:      r.waits.Load(),
		WaitTimeMs: r.waitTimeMs.Load(),
	}
}
