// Package ratelimit provides per-endpoint token bucket throttling for
// outbound webhook deliveries.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter throttles deliveries per endpoint using token buckets. Each
// endpoint gets its own bucket keyed by ID; a limit of 0 disables
// throttling for that endpoint.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	rate     float64 // tokens per second, also the burst cap
	lastFill time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether a delivery to the endpoint may proceed now,
// consuming a token if so.
func (l *Limiter) Allow(endpointID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[endpointID]
	if !ok {
		b = &bucket{tokens: float64(limit), rate: float64(limit), lastFill: time.Now()}
		l.buckets[endpointID] = b
	}
	b.refill()

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Wait blocks until a token is available or ctx is cancelled. A limit of 0
// returns immediately.
func (l *Limiter) Wait(ctx context.Context, endpointID string, limit int) error {
	if limit <= 0 {
		return nil
	}

	// Retry at roughly the token arrival rate.
	interval := time.Duration(float64(time.Second) / float64(limit))

	for {
		if l.Allow(endpointID, limit) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Forget drops the bucket for an endpoint, releasing its state. Called when
// an endpoint is deleted.
func (l *Limiter) Forget(endpointID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, endpointID)
}

func (b *bucket) refill() {
	now := time.Now()
	b.tokens += now.Sub(b.lastFill).Seconds() * b.rate
	if b.tokens > b.rate {
		b.tokens = b.rate
	}
	b.lastFill = now
}
