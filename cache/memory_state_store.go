package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStateStore implements StateStore using ttlcache.
type MemoryStateStore struct {
	cache *ttlcache.Cache[string, StateEntry]
}

var _ StateStore = (*MemoryStateStore)(nil)

// NewMemoryStateStore creates an in-memory store whose states expire after ttl.
func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, StateEntry](ttl),
		ttlcache.WithDisableTouchOnHit[string, StateEntry](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryStateStore{cache: cache}
}

// Issue implements StateStore.Issue.
func (s *MemoryStateStore) Issue(_ context.Context, entry StateEntry) (string, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	state := NewState()
	s.cache.Set(HashState(state), entry, ttlcache.DefaultTTL)
	return state, nil
}

// Consume implements StateStore.Consume.
func (s *MemoryStateStore) Consume(_ context.Context, state string) (*StateEntry, error) {
	item, ok := s.cache.GetAndDelete(HashState(state))
	if !ok || item == nil || item.IsExpired() {
		return nil, ErrStateNotFound
	}
	entry := item.Value()
	return &entry, nil
}

// Len returns the number of live states.
func (s *MemoryStateStore) Len() int {
	return s.cache.Len()
}

// Stop halts the cleanup goroutine.
func (s *MemoryStateStore) Stop() {
	s.cache.Stop()
}
