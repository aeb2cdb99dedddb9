package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// Keys are scoped by userID.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, userID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, userID string, key string) error

	// GetBehavior retrieves the cached behaviour summary of a user.
	// Returns nil, nil on a miss.
	GetBehavior(ctx context.Context, userID string) (*FinancialBehavior, error)

	// SetBehavior caches the behaviour summary of a user.
	SetBehavior(ctx context.Context, userID string, fb *FinancialBehavior, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// The window starts with the first increment.
	IncrementCounter(ctx context.Context, userID string, key string, window time.Duration) (int64, error)

	// ResetCounter drops a counter so the next increment opens a new window.
	ResetCounter(ctx context.Context, userID string, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `mapstructure:"type" json:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `mapstructure:"localMaxSize" json:"localMaxSize"`
	LocalTTL     time.Duration `mapstructure:"localTTL" json:"localTTL"`

	// Redis settings (Pro tier)
	RedisAddr     string `mapstructure:"redisAddr" json:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword" json:"-"`
	RedisDB       int    `mapstructure:"redisDB" json:"redisDB"`

	// Two-phase settings
	EnableTwoPhase bool `mapstructure:"enableTwoPhase" json:"enableTwoPhase"` // If true, check local first, then Redis
}
