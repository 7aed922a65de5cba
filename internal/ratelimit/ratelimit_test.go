package ratelimit

import (
	"context"
	"testing"
)

func TestInMemoryRateLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := NewInMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, _, _, err := limiter.Allow(ctx, "bot", 5)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("request %d unexpectedly denied", i+1)
		}
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "bot", 5)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Error("request over the limit was allowed")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestInMemoryRateLimiter_CallersIndependent(t *testing.T) {
	limiter := NewInMemoryRateLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, "bot", 3)
	}

	allowed, _, _, err := limiter.Allow(ctx, "dashboard", 3)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Error("second caller should have its own window")
	}
}

func TestInMemoryRateLimiter_RemainingCountsDown(t *testing.T) {
	limiter := NewInMemoryRateLimiter()
	ctx := context.Background()

	for want := 2; want >= 0; want-- {
		_, remaining, _, err := limiter.Allow(ctx, "bot", 3)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if remaining != want {
			t.Errorf("remaining = %d, want %d", remaining, want)
		}
	}
}
