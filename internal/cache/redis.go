package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/cartql/internal/domain"
	"github.com/redis/go-redis/v9"
)

// generations outlive any cached item list so a missing counter never
// passes for an old one while a slow reader is still in flight.
const generationTTL = 24 * time.Hour

// setIfGeneration writes KEYS[1] only when KEYS[2] still holds ARGV[1];
// a missing generation key reads as 0.
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if not gen then gen = "0" end
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	key := cacheKey(cartID)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []domain.CartItem
	if err2 := json.Unmarshal(data, &items); err2 != nil {
		return nil, fmt.Errorf("unmarshal items failed: %w", err2)
	}
	return items, nil
}

func (r RedisCache) Generation(ctx context.Context, cartID string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(cartID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (r RedisCache) Set(ctx context.Context, cartID string, gen int64, items []domain.CartItem) error {
	if items == nil {
		items = []domain.CartItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal items failed: %w", err)
	}

	// jitter spreads expiry of carts cached at the same moment
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter

	keys := []string{cacheKey(cartID), generationKey(cartID)}
	stored, err := setIfGeneration.Run(ctx, r.client, keys, gen, data, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return ErrStale
	}
	return nil
}

func (r RedisCache) Invalidate(ctx context.Context, cartID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(cartID))
		pipe.Expire(ctx, generationKey(cartID), generationTTL)
		pipe.Del(ctx, cacheKey(cartID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cacheKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}

func generationKey(cartID string) string {
	return fmt.Sprintf("cartgen:%s", cartID)
}
