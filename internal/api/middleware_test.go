package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/redis"
)

func TestActorMiddlewareRejectsMissingHeader(t *testing.T) {
	mw := ActorMiddleware(zap.NewNop())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestActorMiddlewareRejectsMalformedID(t *testing.T) {
	mw := ActorMiddleware(zap.NewNop())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestActorMiddlewareSetsContext(t *testing.T) {
	mw := ActorMiddleware(zap.NewNop())
	userID := uuid.New()

	var got uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Fatal("actor missing from context")
		}
		got = actor
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
	req.Header.Set("X-User-ID", userID.String())
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	if got != userID {
		t.Errorf("actor = %s, want %s", got, userID)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client := redis.NewFromClient(rdb, zap.NewNop())

	h := NewHandler(Config{
		Limiter: redis.NewRateLimiter(client, 2, time.Minute, zap.NewNop()),
		Logger:  zap.NewNop(),
	})

	var served int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
	})
	wrapped := h.rateLimit(IPKeyFunc)(next)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/alerts", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/alerts", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if served != 2 {
		t.Errorf("served = %d, want 2", served)
	}
}

func TestRateLimitNilLimiterDisablesLimiting(t *testing.T) {
	h := NewHandler(Config{Logger: zap.NewNop()})

	var served int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
	})
	wrapped := h.rateLimit(IPKeyFunc)(next)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/alerts", nil)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)
	}

	if served != 10 {
		t.Errorf("served = %d, want 10", served)
	}
}
