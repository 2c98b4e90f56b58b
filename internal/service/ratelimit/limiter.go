// Package ratelimit implements a per-key token bucket for the ingest API.
package ratelimit

import (
	"sync"
	"time"
)

type state struct {
	tokens float64
	last   time.Time
}

// Limiter tracks one token bucket per key. Capacity and refill rate are
// supplied per call so different endpoints can share a limiter with
// different budgets.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*state
}

func New() *Limiter {
	return &Limiter{buckets: make(map[string]*state)}
}

// Allow consumes one token from key's bucket, returning false when the
// bucket is empty. New keys start full.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.buckets[key]
	if !ok {
		st = &state{tokens: capacity, last: now}
		l.buckets[key] = st
	}

	st.tokens += now.Sub(st.last).Seconds() * refillPerSec
	if st.tokens > capacity {
		st.tokens = capacity
	}
	st.last = now

	if st.tokens < 1 {
		return false
	}
	st.tokens--
	return true
}
