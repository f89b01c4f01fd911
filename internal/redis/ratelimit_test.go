package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	client, _ := newTestClient(t)
	rl := NewRateLimiter(client, 3, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, err := rl.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("Allow() over limit error = %v", err)
	}
	if allowed {
		t.Error("request over the limit should be rejected")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	client, _ := newTestClient(t)
	rl := NewRateLimiter(client, 1, time.Minute, zap.NewNop())
	ctx := context.Background()

	if allowed, _ := rl.Allow(ctx, "user-1"); !allowed {
		t.Fatal("first request for user-1 should be allowed")
	}
	if allowed, _ := rl.Allow(ctx, "user-2"); !allowed {
		t.Error("user-2 must not be affected by user-1's usage")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	client, mr := newTestClient(t)
	rl := NewRateLimiter(client, 1, time.Minute, zap.NewNop())
	ctx := context.Background()

	if allowed, _ := rl.Allow(ctx, "user-1"); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _ := rl.Allow(ctx, "user-1"); allowed {
		t.Fatal("second request inside the window should be rejected")
	}

	mr.FastForward(2 * time.Minute)

	if allowed, _ := rl.Allow(ctx, "user-1"); !allowed {
		t.Error("request after the window should be allowed again")
	}
}

func TestRateLimiterRemaining(t *testing.T) {
	client, _ := newTestClient(t)
	rl := NewRateLimiter(client, 5, time.Minute, zap.NewNop())
	ctx := context.Background()

	remaining, err := rl.Remaining(ctx, "user-1")
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 5 {
		t.Errorf("remaining = %d, want 5", remaining)
	}

	_, _ = rl.Allow(ctx, "user-1")
	_, _ = rl.Allow(ctx, "user-1")

	remaining, err = rl.Remaining(ctx, "user-1")
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if remaining != 3 {
		t.Errorf("remaining = %d, want 3", remaining)
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	client, mr := newTestClient(t)
	rl := NewRateLimiter(client, 1, time.Minute, zap.NewNop())

	mr.Close()

	allowed, err := rl.Allow(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Allow() with redis down error = %v", err)
	}
	if !allowed {
		t.Error("limiter must fail open when redis is unavailable")
	}
}
