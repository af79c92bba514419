package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "charbot:session:"

// RedisStore keeps conversations as JSON values. Idle sessions expire through
// the key TTL, refreshed on every save.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisStore creates a store on rdb. A ttl of 0 keeps sessions forever.
func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) Get(ctx context.Context, id string) (Conversation, error) {
	b, err := s.rdb.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	var c Conversation
	if err := json.Unmarshal(b, &c); err != nil {
		return Conversation{}, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return c, nil
}

func (s *RedisStore) Save(ctx context.Context, c Conversation) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", c.ID, err)
	}
	if err := s.rdb.Set(ctx, redisKey(c.ID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving session %s: %w", c.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, redisKey(id)).Result()
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
