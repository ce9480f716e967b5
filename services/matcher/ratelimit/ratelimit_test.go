// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is an injectable, manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// TestLimiter_FixedWindow tests the core admission sequence: limit=3,
// window=1s, four calls inside the window admit three and reject the
// fourth; a fifth call after the window elapses starts a fresh bucket.
func TestLimiter_FixedWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := New(WithClock(clock.Now))

	const limit = 3
	window := 1000 * time.Millisecond

	wantOK := []bool{true, true, true, false}
	for i, want := range wantOK {
		d := limiter.Check("client-a|/v1/trials/search", limit, window)
		if d.OK != want {
			t.Fatalf("call %d: OK = %v, want %v", i+1, d.OK, want)
		}
	}

	clock.Advance(1001 * time.Millisecond)

	d := limiter.Check("client-a|/v1/trials/search", limit, window)
	if !d.OK {
		t.Fatal("call after window elapsed should start a fresh bucket")
	}
	if d.Remaining != limit-1 {
		t.Errorf("fresh bucket Remaining = %d, want %d", d.Remaining, limit-1)
	}
}

// TestLimiter_RemainingCountsDown tests the remaining counter.
func TestLimiter_RemainingCountsDown(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := New(WithClock(clock.Now))

	for i, want := range []int{4, 3, 2, 1, 0} {
		d := limiter.Check("k", 5, time.Minute)
		if !d.OK {
			t.Fatalf("call %d should be admitted", i+1)
		}
		if d.Remaining != want {
			t.Errorf("call %d: Remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}
}

// TestLimiter_RetryAfterFloor tests the 1-second floor on the backoff hint.
func TestLimiter_RetryAfterFloor(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := New(WithClock(clock.Now))

	limiter.Check("k", 1, 500*time.Millisecond)

	// 400ms into a 500ms window: 100ms remain, hint still floors at 1s.
	clock.Advance(400 * time.Millisecond)
	d := limiter.Check("k", 1, 500*time.Millisecond)
	if d.OK {
		t.Fatal("second call within window should be rejected")
	}
	if d.RetryAfterSeconds < 1 {
		t.Errorf("RetryAfterSeconds = %d, want >= 1", d.RetryAfterSeconds)
	}
}

// TestLimiter_KeysAreIndependent tests that buckets do not bleed across keys.
func TestLimiter_KeysAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := New(WithClock(clock.Now))

	if d := limiter.Check("a", 1, time.Minute); !d.OK {
		t.Fatal("first call for key a should be admitted")
	}
	if d := limiter.Check("a", 1, time.Minute); d.OK {
		t.Fatal("second call for key a should be rejected")
	}
	if d := limiter.Check("b", 1, time.Minute); !d.OK {
		t.Fatal("key b should have its own bucket")
	}
}

// TestMemoryStore_ConcurrentIncrements tests that check-then-increment is
// atomic: with limit N, exactly N of M concurrent calls are admitted.
func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	limiter := New()

	const limit = 10
	const calls = 100

	var wg sync.WaitGroup
	admitted := make(chan bool, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- limiter.Check("shared", limit, time.Minute).OK
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	if count != limit {
		t.Errorf("admitted %d of %d concurrent calls, want exactly %d", count, calls, limit)
	}
}
