package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// These tests need a live Redis instance. They are skipped unless
// REDIS_ADDR is set, e.g. REDIS_ADDR=127.0.0.1:6379 go test ./...
func newRedisTestCounter(t *testing.T) *RedisCounter {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis at %s not reachable: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisCounter(client, "shield:test", time.Second)
}

// uniqueKey avoids cross-test interference on a shared Redis.
func uniqueKey(t *testing.T) string {
	return fmt.Sprintf("%s:%d", t.Name(), time.Now().UnixNano())
}

func TestRedisCounter_RecordCounts(t *testing.T) {
	c := newRedisTestCounter(t)
	ctx := context.Background()
	key := uniqueKey(t)
	defer c.Reset(ctx, key)

	for i := 1; i <= 3; i++ {
		count, err := c.Record(ctx, key, time.Now(), time.Minute)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if count != i {
			t.Errorf("count = %d, want %d", count, i)
		}
	}
}

func TestRedisCounter_WindowPrunes(t *testing.T) {
	c := newRedisTestCounter(t)
	ctx := context.Background()
	key := uniqueKey(t)
	defer c.Reset(ctx, key)

	if _, err := c.Record(ctx, key, time.Now(), 100*time.Millisecond); err != nil {
		t.Fatalf("Record: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	count, err := c.Record(ctx, key, time.Now(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after old entry expired", count)
	}
}

func TestRedisCounter_PeekDoesNotConsume(t *testing.T) {
	c := newRedisTestCounter(t)
	ctx := context.Background()
	key := uniqueKey(t)
	defer c.Reset(ctx, key)

	if _, err := c.Record(ctx, key, time.Now(), time.Minute); err != nil {
		t.Fatalf("Record: %v", err)
	}
	for i := 0; i < 3; i++ {
		count, err := c.Peek(ctx, key, time.Now(), time.Minute)
		if err != nil {
			t.Fatalf("Peek: %v", err)
		}
		if count != 1 {
			t.Errorf("Peek count = %d, want 1", count)
		}
	}
}

func TestRedisCounter_Reset(t *testing.T) {
	c := newRedisTestCounter(t)
	ctx := context.Background()
	key := uniqueKey(t)

	if _, err := c.Record(ctx, key, time.Now(), time.Minute); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Reset(ctx, key); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	count, err := c.Peek(ctx, key, time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if count != 0 {
		t.Errorf("count after reset = %d, want 0", count)
	}
}
