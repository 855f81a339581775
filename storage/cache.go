package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type stateBackend interface {
	LoadState(ctx context.Context, userID string) (*domain.BoardState, bool, error)
	SaveState(ctx context.Context, userID string, state *domain.BoardState) error
}

// StateCache wraps a state backend with Redis-backed caching of board
// reads. Writes go to the backend first, then refresh the cached copy; on
// Redis errors the cache degrades to pass-through rather than failing the
// request.
type StateCache struct {
	base  stateBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewStateCache creates a caching wrapper using the provided Redis client
// and TTL.
func NewStateCache(base stateBackend, client *redis.Client, ttl time.Duration) *StateCache {
	if base == nil {
		panic("storage.NewStateCache: base backend is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &StateCache{base: base, redis: client, ttl: ttl}
}

func (c *StateCache) LoadState(ctx context.Context, userID string) (*domain.BoardState, bool, error) {
	if state, ok := c.loadFromCache(ctx, userID); ok {
		return state, true, nil
	}

	state, found, err := c.base.LoadState(ctx, userID)
	if err != nil || !found {
		return nil, found, err
	}
	c.store(ctx, userID, state)
	return state, true, nil
}

func (c *StateCache) SaveState(ctx context.Context, userID string, state *domain.BoardState) error {
	if err := c.base.SaveState(ctx, userID, state); err != nil {
		return err
	}
	c.store(ctx, userID, state)
	return nil
}

func (c *StateCache) loadFromCache(ctx context.Context, userID string) (*domain.BoardState, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors drop the entry and fall back to the backend.
			_ = c.redis.Del(ctx, boardCacheKey(userID)).Err()
		}
		return nil, false
	}
	var state domain.BoardState
	if err := json.Unmarshal(data, &state); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(userID)).Err()
		return nil, false
	}
	return &state, true
}

func (c *StateCache) store(ctx context.Context, userID string, state *domain.BoardState) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(userID), data, c.ttl).Err()
}

func boardCacheKey(userID string) string {
	return "board:" + userID
}
