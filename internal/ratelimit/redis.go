package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultStoreTimeout bounds every round trip to the external counter
// store. On timeout the call is treated as a store failure so the
// resilient facade can fall back instead of hanging the request.
const DefaultStoreTimeout = 150 * time.Millisecond

// RedisCounter is the primary Counter, backed by a Redis sorted set per
// identifier: member = unique request id, score = timestamp in Unix
// milliseconds. Prune, add, and count run in a single MULTI/EXEC round
// trip so concurrent callers for the same identifier never undercount
// each other.
type RedisCounter struct {
	client    redis.UniversalClient
	keyPrefix string
	timeout   time.Duration
}

// NewRedisCounter creates a RedisCounter. A zero timeout selects
// DefaultStoreTimeout.
func NewRedisCounter(client redis.UniversalClient, keyPrefix string, timeout time.Duration) *RedisCounter {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	if keyPrefix == "" {
		keyPrefix = "shield:rl"
	}
	return &RedisCounter{client: client, keyPrefix: keyPrefix, timeout: timeout}
}

// Record adds an entry, prunes the window, and returns the inclusive count.
func (c *RedisCounter) Record(ctx context.Context, identifier string, now time.Time, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := c.key(identifier)
	cutoff := now.UnixMilli() - window.Milliseconds()
	member := uuid.NewString()

	var countCmd *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		countCmd = pipe.ZCard(ctx, key)
		// Buffer past the window so a Peek shortly after expiry still
		// sees an empty set rather than a missing key mid-prune.
		pipe.Expire(ctx, key, window+time.Minute)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recording rate-limit entry for %s: %w", identifier, err)
	}
	return int(countCmd.Val()), nil
}

// Peek prunes the window and returns the count without adding an entry.
func (c *RedisCounter) Peek(ctx context.Context, identifier string, now time.Time, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := c.key(identifier)
	cutoff := now.UnixMilli() - window.Milliseconds()

	var countCmd *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
		countCmd = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("peeking rate-limit count for %s: %w", identifier, err)
	}
	return int(countCmd.Val()), nil
}

// Reset removes all entries for the identifier.
func (c *RedisCounter) Reset(ctx context.Context, identifier string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(ctx, c.key(identifier)).Err(); err != nil {
		return fmt.Errorf("resetting rate-limit entries for %s: %w", identifier, err)
	}
	return nil
}

// Ping reports whether the backing store is reachable.
func (c *RedisCounter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *RedisCounter) key(identifier string) string {
	return c.keyPrefix + ":" + identifier
}
