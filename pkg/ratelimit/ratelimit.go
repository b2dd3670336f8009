// Package ratelimit throttles outbound probe traffic.
// Built on golang.org/x/time/rate token buckets, with optional per-host
// limiters so a multi-host candidate list cannot concentrate the full
// request budget on a single origin.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/xssed/xssed/pkg/defaults"
)

// Limiter wraps a token bucket shared by all probe workers.
// The zero value is not usable; construct with New or NewPerHost.
type Limiter struct {
	global *rate.Limiter

	perHost bool
	mu      sync.Mutex
	hosts   map[string]*rate.Limiter

	rps   int
	burst int
}

// New creates a limiter allowing rps requests per second with a burst of
// rps/10 (minimum 1). rps <= 0 disables limiting.
func New(rps int) *Limiter {
	l := &Limiter{rps: rps, burst: burstFor(rps)}
	if rps > 0 {
		l.global = rate.NewLimiter(rate.Limit(rps), l.burst)
	}
	return l
}

// NewPerHost creates a limiter that applies the rate to each host
// independently instead of globally.
func NewPerHost(rps int) *Limiter {
	l := New(rps)
	l.perHost = true
	l.hosts = make(map[string]*rate.Limiter)
	return l
}

// Default returns a limiter with the standard scan rate.
func Default() *Limiter {
	return New(defaults.RateLimitDefault)
}

func burstFor(rps int) int {
	b := rps / 10
	if b < 1 {
		b = 1
	}
	return b
}

// Wait blocks until the rate limit allows another request, or the context
// is cancelled. A nil or disabled limiter never blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.WaitForHost(ctx, "")
}

// WaitForHost blocks until the limit for the given host allows another
// request. When per-host limiting is disabled, the host is ignored.
func (l *Limiter) WaitForHost(ctx context.Context, host string) error {
	if l == nil || l.rps <= 0 {
		return ctx.Err()
	}
	if l.perHost && host != "" {
		return l.hostLimiter(host).Wait(ctx)
	}
	return l.global.Wait(ctx)
}

func (l *Limiter) hostLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	hl, ok := l.hosts[host]
	if !ok {
		hl = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.hosts[host] = hl
	}
	return hl
}

// ClearHost removes the per-host limiter for a specific host.
// This helps prevent unbounded memory growth during long-running scans.
func (l *Limiter) ClearHost(host string) {
	if l == nil || !l.perHost {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, host)
}

// HostCount returns the number of tracked per-host limiters.
func (l *Limiter) HostCount() int {
	if l == nil || !l.perHost {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}
