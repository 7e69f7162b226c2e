package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"example.com/gamification/internal/domain"
)

const keyPrefix = "gamification:aggregate:"

// RedisAggregateCache stores aggregates as JSON strings with a TTL so a
// missed invalidation heals on expiry.
type RedisAggregateCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisAggregateCache connects to the Redis instance at url.
func NewRedisAggregateCache(ctx context.Context, url string, ttl time.Duration, logger *zap.Logger) (*RedisAggregateCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	logger.Info("redis aggregate cache ready", zap.String("addr", opts.Addr), zap.Int("db", opts.DB), zap.Duration("ttl", ttl))
	return &RedisAggregateCache{client: client, ttl: ttl, logger: logger}, nil
}

// Get implements domain.AggregateCache.
func (c *RedisAggregateCache) Get(ctx context.Context, userID string) (domain.Aggregate, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Aggregate{}, false, nil
	}
	if err != nil {
		return domain.Aggregate{}, false, err
	}
	var agg domain.Aggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		c.logger.Warn("dropping undecodable aggregate", zap.String("user_id", userID), zap.Error(err))
		_ = c.client.Del(ctx, keyPrefix+userID).Err()
		return domain.Aggregate{}, false, nil
	}
	return agg, true, nil
}

// Set implements domain.AggregateCache.
func (c *RedisAggregateCache) Set(ctx context.Context, agg domain.Aggregate) error {
	data, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal aggregate: %w", err)
	}
	return c.client.Set(ctx, keyPrefix+agg.UserID, data, c.ttl).Err()
}

// Invalidate implements domain.AggregateCache.
func (c *RedisAggregateCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, keyPrefix+userID).Err()
}

// Close releases the client.
func (c *RedisAggregateCache) Close() error {
	return c.client.Close()
}
