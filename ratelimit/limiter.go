// Package ratelimit throttles event publishing per connection with
// token buckets from golang.org/x/time/rate.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Rate configures one bucket. A zero PerSecond means unlimited.
type Rate struct {
	PerSecond float64 `json:"per_second" yaml:"per_second" mapstructure:"per_second"`
	Burst     int     `json:"burst"      yaml:"burst"      mapstructure:"burst"`
}

// Unlimited reports whether r disables limiting.
func (r Rate) Unlimited() bool { return r.PerSecond <= 0 }

func (r Rate) burst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return max(int(r.PerSecond), 1)
}

// Limiter holds a token bucket per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether key may proceed now under r. Buckets start full;
// a changed r is applied to an existing bucket in place.
func (l *Limiter) Allow(key string, r Rate) bool {
	if r.Unlimited() {
		return true
	}
	return l.bucket(key, r).Allow()
}

// Reset forgets the bucket for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) bucket(key string, r Rate) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := rate.Limit(r.PerSecond)
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(limit, r.burst())
		l.buckets[key] = b
		return b
	}
	if b.Limit() != limit {
		b.SetLimit(limit)
	}
	if b.Burst() != r.burst() {
		b.SetBurst(r.burst())
	}
	return b
}
