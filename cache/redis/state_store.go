package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/frigg/cache"
	"github.com/redis/go-redis/v9"
)

// StateStore implements cache.StateStore on Redis, so every API replica can
// validate a state issued by another.
type StateStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ cache.StateStore = (*StateStore)(nil)

// NewStateStore creates a [StateStore]. Keys are "<prefix>:state:<hash>".
func NewStateStore(client redis.Cmdable, prefix string, ttl time.Duration) *StateStore {
	return &StateStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// NewClient connects to addr and verifies the connection with a ping.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *StateStore) redisKey(state string) string {
	return fmt.Sprintf("%s:state:%s", s.prefix, cache.HashState(state))
}

// Issue stores entry under a new state value.
func (s *StateStore) Issue(ctx context.Context, entry cache.StateEntry) (string, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state entry: %w", err)
	}

	state := cache.NewState()
	if err := s.client.Set(ctx, s.redisKey(state), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store state in Redis: %w", err)
	}
	return state, nil
}

// Consume atomically reads and deletes the state.
func (s *StateStore) Consume(ctx context.Context, state string) (*cache.StateEntry, error) {
	val, err := s.client.GetDel(ctx, s.redisKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state from Redis: %w", err)
	}

	var entry cache.StateEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state entry: %w", err)
	}
	return &entry, nil
}
