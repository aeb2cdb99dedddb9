package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/opensource-finance/credbud/internal/behavior"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	s := miniredis.RunT(t)
	c, err := NewRedisCache(s.Addr(), "", 0)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	t.Run("prefixed keys", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "user-1", "k", []byte("v"), time.Minute))
		assert.True(t, s.Exists("credbud:user-1:k"))

		val, err := c.Get(ctx, "user-1", "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(val))

		val, err = c.Get(ctx, "user-2", "k")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("ttl", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "user-1", "ttl", []byte("v"), time.Second))
		s.FastForward(2 * time.Second)

		val, err := c.Get(ctx, "user-1", "ttl")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("counter window", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			got, err := c.IncrementCounter(ctx, "user-1", "loans", time.Hour)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		assert.Equal(t, time.Hour, s.TTL("credbud:user-1:counter:loans"))

		s.FastForward(time.Hour + time.Second)
		got, err := c.IncrementCounter(ctx, "user-1", "loans", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})

	t.Run("counter reset", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := c.IncrementCounter(ctx, "user-1", "resets", time.Hour)
			require.NoError(t, err)
		}
		require.True(t, s.Exists("credbud:user-1:counter:resets"))

		require.NoError(t, c.ResetCounter(ctx, "user-1", "resets"))
		assert.False(t, s.Exists("credbud:user-1:counter:resets"))

		got, err := c.IncrementCounter(ctx, "user-1", "resets", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
		assert.ErrorIs(t, c.ResetCounter(ctx, "", "resets"), ErrUserRequired)
	})

	t.Run("behavior", func(t *testing.T) {
		fb := &domain.FinancialBehavior{UserID: "user-1", TotalScore: 6.5, Rating: behavior.RatingAverage}
		require.NoError(t, c.SetBehavior(ctx, "user-1", fb, time.Minute))

		got, err := c.GetBehavior(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, behavior.RatingAverage, got.Rating)

		require.NoError(t, c.Delete(ctx, "user-1", BehaviorKey))
		got, err = c.GetBehavior(ctx, "user-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, c.Ping(ctx))
	})
}

func TestRedisCacheUnreachable(t *testing.T) {
	_, err := NewRedisCache("127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestTwoPhaseCache(t *testing.T) {
	s := miniredis.RunT(t)

	cfg := domain.CacheConfig{
		Type:           "redis",
		RedisAddr:      s.Addr(),
		EnableTwoPhase: true,
		LocalMaxSize:   10,
		LocalTTL:       time.Minute,
	}
	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	tp, ok := c.(*TwoPhaseCache)
	require.True(t, ok, "expected *TwoPhaseCache, got %T", c)
	ctx := context.Background()

	t.Run("write through", func(t *testing.T) {
		require.NoError(t, tp.Set(ctx, "u", "k", []byte("v"), time.Hour))
		assert.True(t, s.Exists("credbud:u:k"))

		local, _ := tp.local.Get(ctx, "u", "k")
		assert.Equal(t, "v", string(local))
	})

	t.Run("l2 hit fills l1", func(t *testing.T) {
		require.NoError(t, s.Set("credbud:u:remote-only", "r"))

		val, err := tp.Get(ctx, "u", "remote-only")
		require.NoError(t, err)
		assert.Equal(t, "r", string(val))

		local, _ := tp.local.Get(ctx, "u", "remote-only")
		assert.Equal(t, "r", string(local))
	})

	t.Run("delete both tiers", func(t *testing.T) {
		require.NoError(t, tp.Delete(ctx, "u", "k"))
		assert.False(t, s.Exists("credbud:u:k"))
		val, _ := tp.Get(ctx, "u", "k")
		assert.Nil(t, val)
	})

	t.Run("counters live in redis", func(t *testing.T) {
		n, err := tp.IncrementCounter(ctx, "u", "loans", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.True(t, s.Exists("credbud:u:counter:loans"))

		require.NoError(t, tp.ResetCounter(ctx, "u", "loans"))
		assert.False(t, s.Exists("credbud:u:counter:loans"))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, tp.Ping(ctx))
		s.Close()
		assert.Error(t, tp.Ping(ctx))
	})
}
