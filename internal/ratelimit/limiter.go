// Package ratelimit throttles the qualsim MCP tools. Every tool has its own
// token bucket; simulation is the expensive tool and gets the tightest one.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	now     func() time.Time // injectable clock for testing
}

// NewLimiter creates a limiter refilling perSecond tokens per second up to
// burst. A fresh key starts with a full bucket.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// PerMinute creates a limiter allowing n calls per minute with the given
// burst.
func PerMinute(n, burst int) *Limiter {
	return NewLimiter(float64(n)/60.0, burst)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

// Allow takes a token from key's bucket and reports whether one was
// available.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).AllowN(l.now(), 1)
}

// RetryAfter estimates how long key must wait for its next token. Zero
// means a call would be allowed now; a negative value means the bucket
// never refills.
func (l *Limiter) RetryAfter(key string) time.Duration {
	tokens := l.bucket(key).TokensAt(l.now())
	if tokens >= 1 {
		return 0
	}
	if l.limit <= 0 {
		return -1
	}
	// Rounded up to whole seconds; the epsilon absorbs float error.
	secs := math.Ceil((1-tokens)/float64(l.limit) - 1e-9)
	return time.Duration(secs) * time.Second
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default set of per-tool rate limiters.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"qualsim_simulate": PerMinute(10, 2),
		"qualsim_validate": PerMinute(10, 5),
		"qualsim_levels":   PerMinute(60, 10),
		"qualsim_runs":     PerMinute(60, 10),
		"qualsim_graph":    PerMinute(30, 5),
	}
}

// CheckLimit takes a token for toolName. Tools without a limiter are always
// allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if limiter.Allow(toolName) {
		return nil
	}
	if wait := limiter.RetryAfter(toolName); wait > 0 {
		return fmt.Errorf("rate limit exceeded for %s, retry in %s", toolName, wait)
	}
	return fmt.Errorf("rate limit exceeded for %s, please try again later", toolName)
}
