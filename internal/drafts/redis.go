package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache persists drafts in Redis so they survive a terminal restart.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func draftKey(terminalID string) string {
	return fmt.Sprintf("pos:draft:%s", terminalID)
}

func (r *RedisCache) Save(ctx context.Context, terminalID string, draft Draft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := r.client.Set(ctx, draftKey(terminalID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (r *RedisCache) Load(ctx context.Context, terminalID string) (Draft, bool, error) {
	payload, err := r.client.Get(ctx, draftKey(terminalID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Draft{}, false, nil
	}
	if err != nil {
		return Draft{}, false, fmt.Errorf("load draft: %w", err)
	}
	var draft Draft
	if err := json.Unmarshal(payload, &draft); err != nil {
		return Draft{}, false, fmt.Errorf("decode draft: %w", err)
	}
	return draft, true, nil
}

func (r *RedisCache) Discard(ctx context.Context, terminalID string) error {
	if err := r.client.Del(ctx, draftKey(terminalID)).Err(); err != nil {
		return fmt.Errorf("discard draft: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
