package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{name: "burst allows initial requests", rps: 1, burst: 3, calls: 3, wantPass: 3},
		{name: "exceeding burst blocks", rps: 1, burst: 2, calls: 5, wantPass: 2},
		{name: "zero burst blocks everything", rps: 1, burst: 0, calls: 2, wantPass: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst)
			defer rl.Stop()

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if rl.Allow("-1001234") {
					passed++
				}
			}
			if passed != tt.wantPass {
				t.Fatalf("expected %d allowed, got %d", tt.wantPass, passed)
			}
		})
	}
}

func TestKeyedRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := PerMinute(1)
	defer rl.Stop()

	if !rl.Allow("a") {
		t.Fatal("expected first request for a to pass")
	}
	if rl.Allow("a") {
		t.Fatal("expected second request for a to be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("expected b to have its own bucket")
	}
}

func TestKeyedRateLimiter_RefillsOverTime(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newLimiter(1.0/60, 1, 0, func() time.Time { return now })
	defer rl.Stop()

	if !rl.Allow("k") || rl.Allow("k") {
		t.Fatal("expected exactly one request before refill")
	}
	now = now.Add(time.Minute)
	if !rl.Allow("k") {
		t.Fatal("expected request after a minute to pass")
	}
}

func TestKeyedRateLimiter_EvictsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newLimiter(1, 1, time.Hour, func() time.Time { return now })
	defer rl.Stop()

	rl.Allow("old")
	now = now.Add(30 * time.Minute)
	rl.Allow("recent")
	now = now.Add(45 * time.Minute)

	rl.evict()
	if rl.Len() != 1 {
		t.Fatalf("expected one key after eviction, got %d", rl.Len())
	}
}

func TestKeyedRateLimiter_Wait(t *testing.T) {
	rl := New(10, 1)
	defer rl.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx, "k"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := rl.Wait(ctx, "k"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected second wait to block for a refill, took %v", elapsed)
	}

	rl2 := New(0.001, 1)
	defer rl2.Stop()
	_ = rl2.Allow("k")
	short, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	if err := rl2.Wait(short, "k"); err == nil {
		t.Fatal("expected wait to fail when the deadline is shorter than the refill")
	}
}

func TestKeyedRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := New(1, 1)
	rl.Stop()
	rl.Stop()
}
