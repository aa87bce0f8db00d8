package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// memoryShardCount is the number of lock shards. Sharding by identifier
// hash avoids a single global mutex serializing all traffic while still
// giving linearizable counts per identifier.
const memoryShardCount = 64

// memoryEntry holds the timestamp log for one identifier. expiresAt is
// refreshed on every Record so the sweeper can drop idle identifiers.
type memoryEntry struct {
	stamps    []int64 // Unix milliseconds, ascending
	expiresAt int64   // Unix milliseconds
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// MemoryCounter is the in-process Counter used as the fallback when the
// external store is unreachable. A background sweeper removes idle
// identifiers to bound memory.
type MemoryCounter struct {
	shards [memoryShardCount]*memoryShard
	done   chan struct{}
	once   sync.Once
}

// NewMemoryCounter creates a MemoryCounter and starts its sweep goroutine.
// Call Stop to terminate the sweeper.
func NewMemoryCounter(sweepInterval time.Duration) *MemoryCounter {
	c := &MemoryCounter{done: make(chan struct{})}
	for i := range c.shards {
		c.shards[i] = &memoryShard{entries: make(map[string]*memoryEntry)}
	}
	if sweepInterval > 0 {
		go c.sweep(sweepInterval)
	}
	return c
}

// Record appends a timestamp for the identifier, prunes expired entries,
// and returns the count including the new entry.
func (c *MemoryCounter) Record(_ context.Context, identifier string, now time.Time, window time.Duration) (int, error) {
	shard := c.shard(identifier)
	nowMs := now.UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[identifier]
	if !ok {
		entry = &memoryEntry{}
		shard.entries[identifier] = entry
	}
	entry.stamps = pruneStamps(entry.stamps, cutoff)
	entry.stamps = append(entry.stamps, nowMs)
	entry.expiresAt = nowMs + window.Milliseconds()
	return len(entry.stamps), nil
}

// Peek returns the pruned count without adding an entry.
func (c *MemoryCounter) Peek(_ context.Context, identifier string, now time.Time, window time.Duration) (int, error) {
	shard := c.shard(identifier)
	cutoff := now.UnixMilli() - window.Milliseconds()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[identifier]
	if !ok {
		return 0, nil
	}
	entry.stamps = pruneStamps(entry.stamps, cutoff)
	return len(entry.stamps), nil
}

// Reset clears all entries for the identifier.
func (c *MemoryCounter) Reset(_ context.Context, identifier string) error {
	shard := c.shard(identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.entries, identifier)
	return nil
}

// Stop terminates the sweep goroutine. Safe to call more than once.
func (c *MemoryCounter) Stop() {
	c.once.Do(func() { close(c.done) })
}

// sweep periodically removes identifiers whose window has fully elapsed.
func (c *MemoryCounter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			nowMs := time.Now().UnixMilli()
			for _, shard := range c.shards {
				shard.mu.Lock()
				for id, entry := range shard.entries {
					if entry.expiresAt < nowMs || len(entry.stamps) == 0 {
						delete(shard.entries, id)
					}
				}
				shard.mu.Unlock()
			}
		}
	}
}

func (c *MemoryCounter) shard(identifier string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(identifier))
	return c.shards[h.Sum32()%memoryShardCount]
}

// pruneStamps drops timestamps at or before the cutoff. Stamps are
// appended in order, so the first surviving index is a prefix cut.
func pruneStamps(stamps []int64, cutoff int64) []int64 {
	i := 0
	for i < len(stamps) && stamps[i] <= cutoff {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}
