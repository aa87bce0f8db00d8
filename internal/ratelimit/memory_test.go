package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCounterRecordCounts(t *testing.T) {
	c := NewMemoryCounter(0)
	now := time.Now()

	for i := 1; i <= 5; i++ {
		count, err := c.Record(context.Background(), "ip:1.2.3.4", now, time.Minute)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if count != i {
			t.Errorf("record %d: expected count %d, got %d", i, i, count)
		}
	}
}

func TestMemoryCounterSlidingWindow(t *testing.T) {
	c := NewMemoryCounter(0)
	start := time.Now()
	window := 10 * time.Second

	if count, _ := c.Record(context.Background(), "id", start, window); count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	// Just inside the window: the first entry still counts.
	inside := start.Add(window - time.Second)
	if count, _ := c.Record(context.Background(), "id", inside, window); count != 2 {
		t.Errorf("inside window: expected count 2, got %d", count)
	}

	// Past the window from the first entry: only the second and third remain.
	outside := start.Add(window + time.Second)
	if count, _ := c.Record(context.Background(), "id", outside, window); count != 3 {
		// entries at start+9s and start+11s survive, plus this one would be 3,
		// but start+9s is only 2s old at start+11s so it stays
		t.Errorf("past window: expected count 3, got %d", count)
	}

	// Far past everything: the window is empty again.
	later := outside.Add(window + time.Second)
	if count, _ := c.Record(context.Background(), "id", later, window); count != 1 {
		t.Errorf("fresh window: expected count 1, got %d", count)
	}
}

func TestMemoryCounterPeekDoesNotConsume(t *testing.T) {
	c := NewMemoryCounter(0)
	now := time.Now()

	c.Record(context.Background(), "id", now, time.Minute)
	c.Record(context.Background(), "id", now, time.Minute)

	for i := 0; i < 3; i++ {
		count, err := c.Peek(context.Background(), "id", now, time.Minute)
		if err != nil {
			t.Fatalf("peek: %v", err)
		}
		if count != 2 {
			t.Errorf("peek %d: expected 2, got %d", i, count)
		}
	}
}

func TestMemoryCounterPeekUnknownIdentifier(t *testing.T) {
	c := NewMemoryCounter(0)
	count, err := c.Peek(context.Background(), "never-seen", time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}

func TestMemoryCounterReset(t *testing.T) {
	c := NewMemoryCounter(0)
	now := time.Now()

	c.Record(context.Background(), "id", now, time.Minute)
	c.Record(context.Background(), "id", now, time.Minute)

	if err := c.Reset(context.Background(), "id"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if count, _ := c.Peek(context.Background(), "id", now, time.Minute); count != 0 {
		t.Errorf("expected 0 after reset, got %d", count)
	}
}

func TestMemoryCounterIdentifiersIndependent(t *testing.T) {
	c := NewMemoryCounter(0)
	now := time.Now()

	c.Record(context.Background(), "a", now, time.Minute)
	c.Record(context.Background(), "a", now, time.Minute)
	count, _ := c.Record(context.Background(), "b", now, time.Minute)
	if count != 1 {
		t.Errorf("identifier b: expected 1, got %d", count)
	}
}

// Concurrent records for the same identifier must be linearizable:
// every call gets a distinct count, nothing is lost or double-counted.
func TestMemoryCounterConcurrentRecord(t *testing.T) {
	c := NewMemoryCounter(0)
	now := time.Now()
	const n = 50

	counts := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			count, err := c.Record(context.Background(), "shared", now, time.Minute)
			if err != nil {
				t.Errorf("record: %v", err)
				return
			}
			counts[i] = count
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, count := range counts {
		if count < 1 || count > n {
			t.Fatalf("count %d out of range [1,%d]", count, n)
		}
		if seen[count] {
			t.Fatalf("count %d observed twice — lost update", count)
		}
		seen[count] = true
	}

	final, _ := c.Peek(context.Background(), "shared", now, time.Minute)
	if final != n {
		t.Errorf("expected final count %d, got %d", n, final)
	}
}

func TestMemoryCounterSweepRemovesExpired(t *testing.T) {
	c := NewMemoryCounter(10 * time.Millisecond)
	defer c.Stop()

	// An entry whose window ended in the past should be swept.
	past := time.Now().Add(-time.Minute)
	c.Record(context.Background(), "stale", past, time.Second)

	deadline := time.After(2 * time.Second)
	for {
		shard := c.shard("stale")
		shard.mu.Lock()
		_, present := shard.entries["stale"]
		shard.mu.Unlock()
		if !present {
			return
		}
		select {
		case <-deadline:
			t.Fatal("stale entry was not swept")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
