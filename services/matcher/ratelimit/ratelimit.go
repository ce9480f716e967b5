// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit implements fixed-window request admission control.
//
// The limiter is an explicitly constructed instance injected into request
// handlers; there is no ambient global. The bucket store is an interface so
// multi-instance deployments can swap the in-process map for a shared
// external counter store without changing call sites.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	// OK is true when the request is admitted.
	OK bool

	// Limit is the configured window limit, echoed for response headers.
	Limit int

	// Remaining is how many requests are left in the active window.
	Remaining int

	// ResetAt is when the active window expires.
	ResetAt time.Time

	// RetryAfterSeconds is the backoff hint on rejection, floored at 1.
	// Zero when OK.
	RetryAfterSeconds int
}

// BucketStore tracks per-key counters for fixed windows.
//
// Implementations must make the check-then-increment a single atomic step;
// two concurrent calls for the same key must never both observe the same
// pre-increment count.
type BucketStore interface {
	// Increment advances the counter for key and returns the admission
	// decision. A fresh window starts on first use of a key or once now
	// reaches the bucket's reset time.
	Increment(key string, limit int, window time.Duration, now time.Time) Decision
}

// bucket is a single fixed-window counter. Process-lifetime only; buckets
// are reset in place when their window expires and never persisted.
type bucket struct {
	count   int
	resetAt time.Time
}

// memoryStore is the in-process BucketStore.
type memoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemoryStore returns a mutex-guarded in-process bucket store.
func NewMemoryStore() BucketStore {
	return &memoryStore{buckets: make(map[string]*bucket)}
}

func (s *memoryStore) Increment(key string, limit int, window time.Duration, now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		// First request for the key, or the previous window elapsed.
		b = &bucket{count: 1, resetAt: now.Add(window)}
		s.buckets[key] = b
		return Decision{
			OK:        true,
			Limit:     limit,
			Remaining: limit - 1,
			ResetAt:   b.resetAt,
		}
	}

	if b.count < limit {
		b.count++
		return Decision{
			OK:        true,
			Limit:     limit,
			Remaining: limit - b.count,
			ResetAt:   b.resetAt,
		}
	}

	retryAfter := int(math.Ceil(b.resetAt.Sub(now).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{
		OK:                false,
		Limit:             limit,
		Remaining:         0,
		ResetAt:           b.resetAt,
		RetryAfterSeconds: retryAfter,
	}
}

// Limiter performs fixed-window admission checks against a BucketStore.
type Limiter struct {
	store BucketStore
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore swaps the bucket store (e.g., for a shared external counter).
func WithStore(store BucketStore) Option {
	return func(l *Limiter) { l.store = store }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter backed by an in-process store unless overridden.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		store: NewMemoryStore(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check runs one fixed-window admission check for key.
//
// Never returns an error: admission control degrades, it does not fail.
func (l *Limiter) Check(key string, limit int, window time.Duration) Decision {
	return l.store.Increment(key, limit, window, l.now())
}
