package redis

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewFromClient(rdb, zap.NewNop()), mr
}

func TestIdempotencyFirstRequestProceeds(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewIdempotencyStore(client, zap.NewNop())

	result, err := store.CheckOrReserve(context.Background(), uuid.New(), "key-1")
	if err != nil {
		t.Fatalf("CheckOrReserve() error = %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil for a new key", result)
	}
}

func TestIdempotencyReplayReturnsStoredResult(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewIdempotencyStore(client, zap.NewNop())

	userID := uuid.New()
	alertID := uuid.New()
	ctx := context.Background()

	if _, err := store.CheckOrReserve(ctx, userID, "key-1"); err != nil {
		t.Fatalf("CheckOrReserve() error = %v", err)
	}
	err := store.Store(ctx, userID, "key-1", IdempotencyResult{
		AlertID:    alertID,
		StatusCode: http.StatusCreated,
	})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	result, err := store.CheckOrReserve(ctx, userID, "key-1")
	if err != nil {
		t.Fatalf("replay CheckOrReserve() error = %v", err)
	}
	if result == nil {
		t.Fatal("replay should return the stored result")
	}
	if result.AlertID != alertID {
		t.Errorf("alert_id = %s, want %s", result.AlertID, alertID)
	}
	if result.StatusCode != http.StatusCreated {
		t.Errorf("status_code = %d, want 201", result.StatusCode)
	}
}

func TestIdempotencyConcurrentDuplicateRejected(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewIdempotencyStore(client, zap.NewNop())

	userID := uuid.New()
	ctx := context.Background()

	if _, err := store.CheckOrReserve(ctx, userID, "key-1"); err != nil {
		t.Fatalf("first CheckOrReserve() error = %v", err)
	}

	// The first request is still in flight; a duplicate must fail fast.
	_, err := store.CheckOrReserve(ctx, userID, "key-1")
	if !errors.Is(err, ErrDuplicateInFlight) {
		t.Fatalf("error = %v, want ErrDuplicateInFlight", err)
	}
}

func TestIdempotencyReleaseAllowsRetry(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewIdempotencyStore(client, zap.NewNop())

	userID := uuid.New()
	ctx := context.Background()

	if _, err := store.CheckOrReserve(ctx, userID, "key-1"); err != nil {
		t.Fatalf("CheckOrReserve() error = %v", err)
	}
	store.Release(ctx, userID, "key-1")

	result, err := store.CheckOrReserve(ctx, userID, "key-1")
	if err != nil {
		t.Fatalf("retry CheckOrReserve() error = %v", err)
	}
	if result != nil {
		t.Error("released key should behave like a new request")
	}
}

func TestIdempotencyKeysScopedPerUser(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewIdempotencyStore(client, zap.NewNop())
	ctx := context.Background()

	if _, err := store.CheckOrReserve(ctx, uuid.New(), "shared-key"); err != nil {
		t.Fatalf("CheckOrReserve() error = %v", err)
	}

	// Same key from a different user is independent.
	result, err := store.CheckOrReserve(ctx, uuid.New(), "shared-key")
	if err != nil {
		t.Fatalf("second user CheckOrReserve() error = %v", err)
	}
	if result != nil {
		t.Error("keys must be scoped per user")
	}
}

func TestIdempotencyResultExpires(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewIdempotencyStore(client, zap.NewNop())

	userID := uuid.New()
	ctx := context.Background()

	if _, err := store.CheckOrReserve(ctx, userID, "key-1"); err != nil {
		t.Fatalf("CheckOrReserve() error = %v", err)
	}
	if err := store.Store(ctx, userID, "key-1", IdempotencyResult{AlertID: uuid.New(), StatusCode: http.StatusCreated}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	mr.FastForward(IdempotencyTTL + time.Second)

	result, err := store.CheckOrReserve(ctx, userID, "key-1")
	if err != nil {
		t.Fatalf("CheckOrReserve() after expiry error = %v", err)
	}
	if result != nil {
		t.Error("expired key should behave like a new request")
	}
}
