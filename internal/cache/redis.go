package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "credbud:"

// incrWindow increments KEYS[1] and starts its expiry on the first hit.
var incrWindow = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis. Returns nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, userID string, key string) ([]byte, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	val, err := c.client.Get(ctx, redisKey(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores a value in Redis with TTL. Zero ttl means no expiry.
func (c *RedisCache) Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error {
	if userID == "" {
		return ErrUserRequired
	}
	return c.client.Set(ctx, redisKey(userID, key), value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, userID string, key string) error {
	if userID == "" {
		return ErrUserRequired
	}
	return c.client.Del(ctx, redisKey(userID, key)).Err()
}

// GetBehavior retrieves the cached behaviour summary.
func (c *RedisCache) GetBehavior(ctx context.Context, userID string) (*domain.FinancialBehavior, error) {
	return getBehavior(ctx, c, userID)
}

// SetBehavior caches the behaviour summary.
func (c *RedisCache) SetBehavior(ctx context.Context, userID string, fb *domain.FinancialBehavior, ttl time.Duration) error {
	return setBehavior(ctx, c, userID, fb, ttl)
}

// IncrementCounter atomically increments a windowed counter.
func (c *RedisCache) IncrementCounter(ctx context.Context, userID string, key string, window time.Duration) (int64, error) {
	if userID == "" {
		return 0, ErrUserRequired
	}

	fullKey := redisKey(userID, "counter:"+key)
	return incrWindow.Run(ctx, c.client, []string{fullKey}, window.Milliseconds()).Int64()
}

// ResetCounter deletes a windowed counter.
func (c *RedisCache) ResetCounter(ctx context.Context, userID string, key string) error {
	if userID == "" {
		return ErrUserRequired
	}
	return c.client.Del(ctx, redisKey(userID, "counter:"+key)).Err()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(userID, key string) string {
	return keyPrefix + scopedKey(userID, key)
}
