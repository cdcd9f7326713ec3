// Package ratelimit implements per-client token bucket rate limiting for
// HTTP handlers.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle, full bucket is kept.
const staleAfter = 10 * time.Minute

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // requests left in current window
	ResetAt    time.Time     // when the bucket will be full again
	RetryAfter time.Duration // how long to wait before retrying (0 if allowed)
}

// Limiter manages rate limit buckets per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	window  time.Duration
	stop    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a rate limiter allowing requests per window with burst
// capacity. requests <= 0 disables limiting.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	r := rate.Inf
	if requests > 0 {
		r = rate.Limit(float64(requests) / window.Seconds())
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    r,
		burst:   max(burst, 1),
		window:  window,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a request for key may proceed and consumes a token
// if so.
func (l *Limiter) Allow(key string) Result {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if l.rate == rate.Inf {
		return Result{Allowed: true, Limit: l.burst, Remaining: l.burst, ResetAt: now}
	}

	reservation := b.limiter.ReserveN(now, 1)
	allowed := reservation.OK() && reservation.DelayFrom(now) == 0
	if !allowed && reservation.OK() {
		reservation.CancelAt(now)
	}

	tokens := b.limiter.TokensAt(now)
	refill := time.Duration((float64(l.burst) - tokens) / float64(l.rate) * float64(time.Second))
	res := Result{
		Allowed:   allowed,
		Limit:     int(math.Round(float64(l.rate) * l.window.Seconds())),
		Remaining: max(int(tokens), 0),
		ResetAt:   now.Add(refill),
	}
	if !allowed {
		res.RetryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}
	return res
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(staleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stop:
			return
		}
	}
}

// cleanup removes buckets that are idle and full.
func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := now.Add(-staleAfter)
	for key, b := range l.buckets {
		if b.lastSeen.Before(threshold) && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (l *Limiter) Close() {
	close(l.stop)
}
