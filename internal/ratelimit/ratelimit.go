// Package ratelimit throttles order submission per authority, adapted from
// gateway/middleware/ratelimit.go's per-key golang.org/x/time/rate token
// bucket (there wrapping an HTTP handler; here exposed as Allow for a host to
// call before place_order, and no Engine method calls it, since this engine
// has no HTTP surface of its own -- spec §1 excludes
// admin/CLI/RPC plumbing, but the resource-protection concern itself is
// carried regardless, per SPEC_FULL.md's ambient stack).
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a per-authority token bucket limiter.
type Limiter struct {
	ratePerSecond float64
	burst         int

	mu       sync.RWMutex
	visitors map[string]*rate.Limiter
	clockNow func() time.Time
}

// NewLimiter constructs a Limiter allowing ratePerSecond sustained requests
// per authority with burst headroom.
func NewLimiter(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{
		ratePerSecond: ratePerSecond,
		burst:         burst,
		visitors:      make(map[string]*rate.Limiter),
		clockNow:      time.Now,
	}
}

// Allow reports whether authority may submit one more order right now,
// consuming a token if so.
func (l *Limiter) Allow(authority string) bool {
	return l.obtain(authority).AllowN(l.clockNow(), 1)
}

func (l *Limiter) obtain(authority string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.visitors[authority]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok = l.visitors[authority]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.ratePerSecond), l.burst)
	l.visitors[authority] = limiter
	return limiter
}
