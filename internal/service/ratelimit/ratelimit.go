// Package ratelimit enforces per-org request budgets on the service
// surface. One bucket per organization holds `limit` tokens refilled
// continuously over the window; requests draw a cost proportional to the
// work they cause (an upload seals bytes to disk and the catalog, a
// search only reads), so a single budget covers both endpoints.
package ratelimit

import (
	"sync"
	"time"
)

// bucket tracks one org's remaining tokens.
type bucket struct {
	tokens  float64
	updated time.Time
}

// Limiter is an in-memory cost-weighted token bucket keyed by org.
// Idle buckets are swept lazily on access; there is no background
// goroutine to leak when a Limiter is short-lived (tests, one-shot
// tools).
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	window    time.Duration
	lastSweep time.Time
}

// New creates a Limiter with the given refill window. Each org receives
// `limit` tokens per window, refilled continuously.
func New(window time.Duration) *Limiter {
	return &Limiter{
		buckets:   make(map[string]*bucket),
		window:    window,
		lastSweep: time.Now(),
	}
}

// Allow draws one token from the org's bucket.
func (l *Limiter) Allow(org string, limit int) bool {
	return l.AllowN(org, limit, 1)
}

// AllowN draws cost tokens from the org's bucket, reporting whether the
// budget covered it. A cost above limit can never be served and is
// rejected outright.
func (l *Limiter) AllowN(org string, limit, cost int) bool {
	if cost <= 0 {
		cost = 1
	}
	if cost > limit {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.sweepLocked(now)

	b, ok := l.buckets[org]
	if !ok {
		b = &bucket{tokens: float64(limit), updated: now}
		l.buckets[org] = b
	} else {
		rate := float64(limit) / l.window.Seconds()
		b.tokens += now.Sub(b.updated).Seconds() * rate
		if b.tokens > float64(limit) {
			b.tokens = float64(limit)
		}
		b.updated = now
	}

	if b.tokens < float64(cost) {
		return false
	}
	b.tokens -= float64(cost)
	return true
}

// Remaining reports the whole tokens currently left for an org without
// consuming any.
func (l *Limiter) Remaining(org string, limit int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[org]
	if !ok {
		return limit
	}
	rate := float64(limit) / l.window.Seconds()
	tokens := b.tokens + time.Since(b.updated).Seconds()*rate
	if tokens > float64(limit) {
		tokens = float64(limit)
	}
	if tokens < 0 {
		return 0
	}
	return int(tokens)
}

// Reset clears the state for a specific org.
func (l *Limiter) Reset(org string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, org)
}

// sweepLocked drops buckets idle for two windows. It runs at most once
// per window so hot paths pay nothing for eviction.
func (l *Limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-2 * l.window)
	for org, b := range l.buckets {
		if b.updated.Before(cutoff) {
			delete(l.buckets, org)
		}
	}
}
