package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const violationShardCount = 16

// ViolationState tracks an identifier's rate-limit violation history.
// The count only grows, except for the cooldown reset: after a full
// cooldown period with no further violations it returns to zero. The
// record itself is retained for audit.
type ViolationState struct {
	Identifier      string
	ViolationCount  int
	LastViolationAt time.Time
	LockoutUntil    time.Time
}

// LockedOut reports whether the identifier is inside a lockout window.
func (v ViolationState) LockedOut(now time.Time) bool {
	return v.LockoutUntil.After(now)
}

type violationShard struct {
	mu     sync.Mutex
	states map[string]*ViolationState
}

// ViolationStore owns all ViolationState records. Every read applies the
// cooldown rule lazily; every mutation is an atomic per-identifier
// read-modify-write under the shard lock.
type ViolationStore struct {
	shards [violationShardCount]*violationShard

	policyMu sync.RWMutex
	backoff  Backoff
	cooldown time.Duration
}

// NewViolationStore creates a store using the given backoff schedule and
// cooldown period (how long an identifier must stay clean before its
// count resets to zero).
func NewViolationStore(backoff Backoff, cooldown time.Duration) *ViolationStore {
	s := &ViolationStore{backoff: backoff, cooldown: cooldown}
	for i := range s.shards {
		s.shards[i] = &violationShard{states: make(map[string]*ViolationState)}
	}
	return s
}

// Get returns the current state for the identifier, applying the
// cooldown reset if the identifier has been clean long enough.
func (s *ViolationStore) Get(identifier string, now time.Time) ViolationState {
	shard := s.shard(identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.states[identifier]
	if !ok {
		return ViolationState{Identifier: identifier}
	}
	s.applyCooldown(state, now)
	return *state
}

// Escalate records one more violation and computes the new lockout
// window. It returns the updated state.
func (s *ViolationStore) Escalate(identifier string, now time.Time) ViolationState {
	shard := s.shard(identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.states[identifier]
	if !ok {
		state = &ViolationState{Identifier: identifier}
		shard.states[identifier] = state
	}
	s.applyCooldown(state, now)

	state.ViolationCount++
	state.LastViolationAt = now
	state.LockoutUntil = now.Add(s.lockoutFor(state.ViolationCount))
	return *state
}

// SetPolicy replaces the backoff schedule and cooldown at runtime.
// Existing violation history is preserved; only future lockout and
// cooldown computations use the new values.
func (s *ViolationStore) SetPolicy(backoff Backoff, cooldown time.Duration) {
	s.policyMu.Lock()
	defer s.policyMu.Unlock()
	s.backoff = backoff
	s.cooldown = cooldown
}

func (s *ViolationStore) lockoutFor(count int) time.Duration {
	s.policyMu.RLock()
	defer s.policyMu.RUnlock()
	return s.backoff.Lockout(count)
}

func (s *ViolationStore) cooldownPeriod() time.Duration {
	s.policyMu.RLock()
	defer s.policyMu.RUnlock()
	return s.cooldown
}

// Unlock zeroes the count and lockout for the identifier (administrative
// override). The record stays in place for audit.
func (s *ViolationStore) Unlock(identifier string) {
	shard := s.shard(identifier)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if state, ok := shard.states[identifier]; ok {
		state.ViolationCount = 0
		state.LockoutUntil = time.Time{}
	}
}

// applyCooldown resets the count when now is past lockout end plus the
// cooldown period. Caller holds the shard lock.
func (s *ViolationStore) applyCooldown(state *ViolationState, now time.Time) {
	if state.ViolationCount == 0 {
		return
	}
	quietSince := state.LastViolationAt
	if state.LockoutUntil.After(quietSince) {
		quietSince = state.LockoutUntil
	}
	if now.After(quietSince.Add(s.cooldownPeriod())) {
		state.ViolationCount = 0
		state.LockoutUntil = time.Time{}
	}
}

func (s *ViolationStore) shard(identifier string) *violationShard {
	h := fnv.New32a()
	h.Write([]byte(identifier))
	return s.shards[h.Sum32()%violationShardCount]
}
