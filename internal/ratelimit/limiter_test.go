package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, max int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, Config{MaxAttempts: max, Window: time.Minute}), mr
}

func counter(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	if !mr.Exists(key) {
		return "0"
	}
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestLimiter_BlocksAfterMaxAttempts(t *testing.T) {
	l, mr := newLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.CheckLogin(ctx, "13800000000", "10.0.0.1"))
	}
	assert.ErrorIs(t, l.CheckLogin(ctx, "13800000000", "10.0.0.1"), ErrRateLimited)
	// A refused attempt reserves nothing.
	assert.Equal(t, "3", counter(t, mr, loginIdentifierKey("13800000000")))
	assert.Equal(t, "3", counter(t, mr, loginIPKey("10.0.0.1")))
	assert.True(t, mr.TTL(loginIdentifierKey("13800000000")) > 0)
}

func TestLimiter_ConcurrentAttemptsNeverExceedBudget(t *testing.T) {
	l, mr := newLimiter(t, 5)
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.CheckLogin(ctx, "13800000000", "10.0.0.1")
			if err == nil {
				allowed.Add(1)
			} else if !errors.Is(err, ErrRateLimited) {
				t.Errorf("CheckLogin: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), allowed.Load())
	assert.Equal(t, "5", counter(t, mr, loginIdentifierKey("13800000000")))
}

func TestLimiter_IPCounterSpansIdentifiers(t *testing.T) {
	l, _ := newLimiter(t, 2)
	ctx := context.Background()

	require.NoError(t, l.CheckLogin(ctx, "13800000000", "10.0.0.1"))
	require.NoError(t, l.CheckLogin(ctx, "13800000001", "10.0.0.1"))

	assert.ErrorIs(t, l.CheckLogin(ctx, "13800000002", "10.0.0.1"), ErrRateLimited)
	assert.NoError(t, l.CheckLogin(ctx, "13800000002", "10.0.0.2"))
}

func TestLimiter_WindowExpires(t *testing.T) {
	l, mr := newLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, l.CheckLogin(ctx, "13800000000", ""))
	assert.ErrorIs(t, l.CheckLogin(ctx, "13800000000", ""), ErrRateLimited)

	mr.FastForward(2 * time.Minute)
	assert.NoError(t, l.CheckLogin(ctx, "13800000000", ""))
}

func TestLimiter_Reset(t *testing.T) {
	l, mr := newLimiter(t, 2)
	ctx := context.Background()

	// One failure, then a successful attempt.
	require.NoError(t, l.CheckLogin(ctx, "13800000000", "10.0.0.1"))
	require.NoError(t, l.CheckLogin(ctx, "13800000000", "10.0.0.1"))
	require.NoError(t, l.Reset(ctx, "13800000000", "10.0.0.1"))

	assert.Equal(t, "0", counter(t, mr, loginIdentifierKey("13800000000")))
	// The earlier failure stays on the IP counter.
	assert.Equal(t, "1", counter(t, mr, loginIPKey("10.0.0.1")))
}

func TestLimiter_Release(t *testing.T) {
	l, mr := newLimiter(t, 1)
	ctx := context.Background()

	require.NoError(t, l.CheckLogin(ctx, "13800000000", "10.0.0.1"))
	require.NoError(t, l.Release(ctx, "13800000000", "10.0.0.1"))
	assert.Equal(t, "0", counter(t, mr, loginIdentifierKey("13800000000")))
	assert.Equal(t, "0", counter(t, mr, loginIPKey("10.0.0.1")))
	assert.NoError(t, l.CheckLogin(ctx, "13800000000", "10.0.0.1"))

	// Releasing an empty counter does not go negative.
	require.NoError(t, l.Release(ctx, "13800000009", ""))
	assert.False(t, mr.Exists(loginIdentifierKey("13800000009")))
}

func TestLimiter_RedisUnavailable(t *testing.T) {
	l, mr := newLimiter(t, 1)
	mr.Close()
	ctx := context.Background()

	assert.ErrorIs(t, l.CheckLogin(ctx, "13800000000", ""), ErrRedisUnavailable)
	assert.ErrorIs(t, l.Release(ctx, "13800000000", ""), ErrRedisUnavailable)
	assert.ErrorIs(t, l.Reset(ctx, "13800000000", ""), ErrRedisUnavailable)
	assert.ErrorIs(t, l.Ping(ctx), ErrRedisUnavailable)
}
