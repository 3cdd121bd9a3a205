package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterEnforcesWindow(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryLimiter(3, 100*time.Millisecond)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "tenant-1")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d rejected within limit", i)
		}
	}

	allowed, err := limiter.Allow(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("over-limit request: %v", err)
	}
	if allowed {
		t.Fatal("request over the limit was allowed")
	}

	// A different key has its own budget.
	allowed, err = limiter.Allow(ctx, "tenant-2")
	if err != nil {
		t.Fatalf("other tenant: %v", err)
	}
	if !allowed {
		t.Fatal("other tenant was rejected")
	}

	// The window slides: after it passes the budget is back.
	time.Sleep(120 * time.Millisecond)
	allowed, err = limiter.Allow(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("post-window request: %v", err)
	}
	if !allowed {
		t.Fatal("request after the window elapsed was rejected")
	}
}

func TestMemoryLimiterAllowsEmptyKey(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute)
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(context.Background(), "")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if !allowed {
			t.Fatal("empty key must never be limited")
		}
	}
}
