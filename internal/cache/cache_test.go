package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/credbud/internal/behavior"
	"github.com/opensource-finance/credbud/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	userID := "user-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, userID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, userID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, userID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("UserIsolation", func(t *testing.T) {
		val, _ := cache.Get(ctx, "user-002", "key1")
		if val != nil {
			t.Error("another user must not see key1")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, userID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, userID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, userID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("RequiresUserID", func(t *testing.T) {
		if _, err := cache.Get(ctx, "", "k"); !errors.Is(err, ErrUserRequired) {
			t.Errorf("expected ErrUserRequired, got %v", err)
		}
		if _, err := cache.IncrementCounter(ctx, "", "k", time.Minute); !errors.Is(err, ErrUserRequired) {
			t.Errorf("expected ErrUserRequired, got %v", err)
		}
	})
}

func TestLRUCacheExpiry(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	_ = cache.Set(ctx, "u", "short", []byte("x"), time.Second)
	_ = cache.Set(ctx, "u", "forever", []byte("y"), 0)

	clock = clock.Add(2 * time.Second)

	if val, _ := cache.Get(ctx, "u", "short"); val != nil {
		t.Error("expected entry to expire")
	}
	if val, _ := cache.Get(ctx, "u", "forever"); string(val) != "y" {
		t.Error("zero ttl entry should not expire")
	}
}

func TestLRUCacheEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cache.Set(ctx, "u", fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}
	// Touch k0 so k1 becomes the oldest.
	_, _ = cache.Get(ctx, "u", "k0")
	_ = cache.Set(ctx, "u", "k3", []byte("v"), time.Minute)

	if val, _ := cache.Get(ctx, "u", "k1"); val != nil {
		t.Error("expected k1 to be evicted")
	}
	if val, _ := cache.Get(ctx, "u", "k0"); val == nil {
		t.Error("expected k0 to survive")
	}

	size, capacity := cache.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("expected 3/3, got %d/%d", size, capacity)
	}
}

func TestLRUCacheCounterWindow(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	for want := int64(1); want <= 3; want++ {
		got, err := cache.IncrementCounter(ctx, "u", "loans", time.Hour)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	clock = clock.Add(61 * time.Minute)
	got, _ := cache.IncrementCounter(ctx, "u", "loans", time.Hour)
	if got != 1 {
		t.Errorf("expected a fresh window, got %d", got)
	}
}

func TestLRUCacheResetCounter(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		cache.IncrementCounter(ctx, "u", "loans", time.Hour)
	}
	other, _ := cache.IncrementCounter(ctx, "v", "loans", time.Hour)

	if err := cache.ResetCounter(ctx, "u", "loans"); err != nil {
		t.Fatalf("ResetCounter failed: %v", err)
	}
	if got, _ := cache.IncrementCounter(ctx, "u", "loans", time.Hour); got != 1 {
		t.Errorf("expected a fresh counter after reset, got %d", got)
	}
	if got, _ := cache.IncrementCounter(ctx, "v", "loans", time.Hour); got != other+1 {
		t.Errorf("reset must not touch other users, got %d", got)
	}
	if err := cache.ResetCounter(ctx, "", "loans"); !errors.Is(err, ErrUserRequired) {
		t.Errorf("expected ErrUserRequired, got %v", err)
	}
}

func TestLRUCacheBehavior(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	fb, err := cache.GetBehavior(ctx, "u")
	if err != nil || fb != nil {
		t.Fatalf("expected miss, got %v, %v", fb, err)
	}

	in := &domain.FinancialBehavior{
		UserID:         "u",
		TotalScore:     8.4,
		Rating:         behavior.RatingGood,
		CategoryScores: map[behavior.Category]float64{behavior.CategoryInvestments: 6},
	}
	if err := cache.SetBehavior(ctx, "u", in, time.Minute); err != nil {
		t.Fatalf("SetBehavior failed: %v", err)
	}

	out, err := cache.GetBehavior(ctx, "u")
	if err != nil {
		t.Fatalf("GetBehavior failed: %v", err)
	}
	if out.Rating != behavior.RatingGood || out.CategoryScores[behavior.CategoryInvestments] != 6 {
		t.Errorf("unexpected behavior: %+v", out)
	}
}

func TestNewCache(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
