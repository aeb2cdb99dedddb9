// Package cache provides caching implementations for CredBud.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/credbud/internal/domain"
)

// ErrUserRequired is returned when a key is not scoped to a user.
var ErrUserRequired = errors.New("userID is required")

// BehaviorKey holds the cached behaviour summary of a user.
const BehaviorKey = "behavior"

// New creates a new cache based on configuration.
// "memory" returns an LRU cache. "redis" returns a TwoPhaseCache
// when two-phase is enabled, otherwise a plain Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// byteStore is the raw key/value surface shared by the implementations.
type byteStore interface {
	Get(ctx context.Context, userID string, key string) ([]byte, error)
	Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error
}

func getBehavior(ctx context.Context, s byteStore, userID string) (*domain.FinancialBehavior, error) {
	data, err := s.Get(ctx, userID, BehaviorKey)
	if err != nil || data == nil {
		return nil, err
	}

	var fb domain.FinancialBehavior
	if err := json.Unmarshal(data, &fb); err != nil {
		return nil, fmt.Errorf("failed to decode cached behavior: %w", err)
	}
	return &fb, nil
}

func setBehavior(ctx context.Context, s byteStore, userID string, fb *domain.FinancialBehavior, ttl time.Duration) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return err
	}
	return s.Set(ctx, userID, BehaviorKey, data, ttl)
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis shared by all API and worker nodes
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}

	return &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, userID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, userID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, userID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both tiers. L1 never outlives L2.
func (c *TwoPhaseCache) Set(ctx context.Context, userID string, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, userID, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, userID, key, value, ttl)
}

// Delete removes from both tiers.
func (c *TwoPhaseCache) Delete(ctx context.Context, userID string, key string) error {
	if err := c.local.Delete(ctx, userID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, userID, key)
}

// GetBehavior retrieves the cached behaviour summary.
func (c *TwoPhaseCache) GetBehavior(ctx context.Context, userID string) (*domain.FinancialBehavior, error) {
	return getBehavior(ctx, c, userID)
}

// SetBehavior caches the behaviour summary in both tiers.
func (c *TwoPhaseCache) SetBehavior(ctx context.Context, userID string, fb *domain.FinancialBehavior, ttl time.Duration) error {
	return setBehavior(ctx, c, userID, fb, ttl)
}

// IncrementCounter uses Redis only so counts agree across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, userID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, userID, key, window)
}

// ResetCounter clears the Redis counter.
func (c *TwoPhaseCache) ResetCounter(ctx context.Context, userID string, key string) error {
	return c.remote.ResetCounter(ctx, userID, key)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
