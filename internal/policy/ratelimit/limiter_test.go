package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_WaitPacesSameKey(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 = one token every 100ms.
	l := New(Config{RatePerSecond: 10, Burst: 1})

	var delays []time.Duration
	l.OnDelay = func(key string, waited time.Duration) {
		assert.Equal(t, "bing", key)
		delays = append(delays, waited)
	}

	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, "bing"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "bing"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Len(t, delays, 1)
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RatePerSecond: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "bing"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "google_cse"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "second key should not be blocked by the first")
}

func TestLimiter_DisabledWhenRateIsZero(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "bing"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RatePerSecond: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "bing"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "bing")
	require.Error(t, err)
}
