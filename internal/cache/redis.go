package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"example.com/backstage/services/esign/config"
)

// RedisCache provides read caching and the reminder rate-limit hook
type RedisCache struct {
	client  *redis.Client
	enabled bool
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(cfg config.RedisConfig) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisCache{client: client, enabled: true}, nil
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, value interface{}) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errors.Wrap(err, "key not found in cache")
		}
		return errors.Wrap(err, "failed to get value from Redis")
	}

	if err := json.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "failed to unmarshal cached value")
	}
	return nil
}

// Set stores a value in cache with optional expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if !c.enabled {
		return errors.New("cache is disabled")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal value for caching")
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return errors.Wrap(err, "failed to set value in Redis")
	}
	return nil
}

// Invalidate removes a key from cache
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// AllowRemind is the reminder rate-limit hook: at most one reminder per
// signatory per cooldown window. With caching disabled reminders are always
// allowed; the engine exposes the hook, policy lives in configuration.
func (c *RedisCache) AllowRemind(ctx context.Context, signatoryID uuid.UUID, cooldown time.Duration) (bool, error) {
	if !c.enabled || cooldown <= 0 {
		return true, nil
	}
	key := GetRemindCooldownKey(signatoryID)
	ok, err := c.client.SetNX(ctx, key, time.Now().Unix(), cooldown).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to check remind cooldown")
	}
	return ok, nil
}

// GetRequestCacheKey generates a cache key for a signing request
func GetRequestCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("signing-request:%s", id.String())
}

// GetRemindCooldownKey generates the reminder cooldown key for a signatory
func GetRemindCooldownKey(id uuid.UUID) string {
	return fmt.Sprintf("remind-cooldown:%s", id.String())
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	if !c.enabled || c.client == nil {
		return nil
	}
	return c.client.Close()
}
