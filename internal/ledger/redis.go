package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jadejashaktisinh/gravityforms-tailoredpay/internal/logger"
)

const eventKeyPrefix = "processed_event:"

// redisClient is the subset of redis.Client the ledger uses.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisLedger records applied events as SetNX keys. Suitable for
// deployments where the order store and ledger do not share a database;
// retention is governed by the key TTL (zero means keep forever).
type RedisLedger struct {
	client redisClient
	ttl    time.Duration
	log    *logger.Logger
}

func NewRedisLedger(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl, log: log}
}

// newRedisLedgerWithClient is the injection point for tests.
func newRedisLedgerWithClient(client redisClient, ttl time.Duration, log *logger.Logger) *RedisLedger {
	return &RedisLedger{client: client, ttl: ttl, log: log}
}

func (l *RedisLedger) HasBeenApplied(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, eventKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Record(ctx context.Context, eventID string, orderID int64) error {
	ok, err := l.client.SetNX(ctx, eventKeyPrefix+eventID, strconv.FormatInt(orderID, 10), l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if !ok {
		return ErrAlreadyRecorded
	}
	l.log.Info("LEDGER", fmt.Sprintf("Recorded event %s for order %d", eventID, orderID))
	return nil
}
