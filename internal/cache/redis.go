package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/cartflow/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxTTLJitter = 5 * time.Minute

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, scope domain.Scope) ([]domain.CartLineItem, error) {
	data, err := r.client.Get(ctx, cacheKey(scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []domain.CartLineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if items == nil {
		items = []domain.CartLineItem{}
	}

	return items, nil
}

func (r *RedisCache) Set(ctx context.Context, scope domain.Scope, items []domain.CartLineItem) error {
	if items == nil {
		items = []domain.CartLineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// jitter spreads expiry so carts cached together do not all miss together
	ttl := r.baseTTL + rand.N(maxTTLJitter)
	if err := r.client.Set(ctx, cacheKey(scope), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, scope domain.Scope) error {
	if err := r.client.Del(ctx, cacheKey(scope)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(scope domain.Scope) string {
	return fmt.Sprintf("cart:%s", scope)
}
