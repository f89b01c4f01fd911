package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/metrics"
)

const (
	// idempotencyKeyPrefix namespaces SOS trigger idempotency keys.
	idempotencyKeyPrefix = "guardline:idem:"

	// IdempotencyTTL is how long a completed trigger result is remembered.
	// A panicked user mashing the SOS button for ten minutes still gets
	// the same alert back.
	IdempotencyTTL = 10 * time.Minute

	// reservationTTL bounds how long an in-flight reservation blocks
	// retries if the original request dies before storing a result.
	reservationTTL = 30 * time.Second
)

// ErrDuplicateInFlight is returned when a request with the same idempotency
// key is currently being processed.
var ErrDuplicateInFlight = errors.New("request with this idempotency key is in flight")

// IdempotencyResult is the stored outcome of a completed SOS trigger.
type IdempotencyResult struct {
	AlertID    uuid.UUID `json:"alert_id"`
	StatusCode int       `json:"status_code"`
}

// IdempotencyStore deduplicates SOS trigger requests by client-supplied key.
type IdempotencyStore struct {
	client *Client
	logger *zap.Logger
}

// NewIdempotencyStore creates a new idempotency store.
func NewIdempotencyStore(client *Client, logger *zap.Logger) *IdempotencyStore {
	return &IdempotencyStore{client: client, logger: logger}
}

func (s *IdempotencyStore) key(userID uuid.UUID, idempotencyKey string) string {
	return fmt.Sprintf("%s%s:%s", idempotencyKeyPrefix, userID, idempotencyKey)
}

// CheckOrReserve returns the stored result for the key if one exists.
// Otherwise it reserves the key so concurrent duplicates fail fast with
// ErrDuplicateInFlight, and returns (nil, nil) meaning "proceed".
func (s *IdempotencyStore) CheckOrReserve(ctx context.Context, userID uuid.UUID, idempotencyKey string) (*IdempotencyResult, error) {
	k := s.key(userID, idempotencyKey)

	val, err := s.client.rdb.Get(ctx, k).Result()
	if err == nil {
		if val == "pending" {
			return nil, ErrDuplicateInFlight
		}
		var result IdempotencyResult
		if err := json.Unmarshal([]byte(val), &result); err != nil {
			s.logger.Warn("corrupt idempotency record, treating as new request",
				zap.String("key", k), zap.Error(err))
			return nil, nil
		}
		metrics.RecordIdempotencyHit()
		s.logger.Debug("idempotency hit",
			zap.String("key", idempotencyKey),
			zap.String("alert_id", result.AlertID.String()),
		)
		return &result, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	ok, err := s.client.rdb.SetNX(ctx, k, "pending", reservationTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !ok {
		// Lost the race to a concurrent request with the same key.
		return nil, ErrDuplicateInFlight
	}

	return nil, nil
}

// Store records the outcome of a completed trigger under the key.
func (s *IdempotencyStore) Store(ctx context.Context, userID uuid.UUID, idempotencyKey string, result IdempotencyResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency result: %w", err)
	}

	k := s.key(userID, idempotencyKey)
	if err := s.client.rdb.Set(ctx, k, data, IdempotencyTTL).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency result: %w", err)
	}
	return nil
}

// Release drops a reservation after a failed trigger so the client can retry
// with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, userID uuid.UUID, idempotencyKey string) {
	k := s.key(userID, idempotencyKey)
	if err := s.client.rdb.Del(ctx, k).Err(); err != nil {
		s.logger.Warn("failed to release idempotency reservation",
			zap.String("key", k), zap.Error(err))
	}
}
