package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	_, client := newMiniredis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "k", 1, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := bucket.Allow(ctx, "k", 1, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Second)
}

func TestTokenBucketSetsExpiry(t *testing.T) {
	mr, client := newMiniredis(t)
	_, err := NewTokenBucket(client).Allow(context.Background(), "k", 0.5, 2)
	require.NoError(t, err)

	assert.True(t, mr.Exists("k"))
	assert.Equal(t, 8*time.Second, mr.TTL("k"))
}

func TestTokenBucketValidates(t *testing.T) {
	_, client := newMiniredis(t)
	bucket := NewTokenBucket(client)

	_, err := bucket.Allow(context.Background(), "", 1, 1)
	assert.Error(t, err)
	_, err = bucket.Allow(context.Background(), "k", 0, 1)
	assert.Error(t, err)

	var nilBucket *TokenBucket
	_, err = nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
}

func TestRedisLimiterIsPerUser(t *testing.T) {
	_, client := newMiniredis(t)
	limiter := NewRedisLimiter(NewTokenBucket(client), map[string]Policy{
		EndpointPaymentInitiate: {Rate: 0.1, Burst: 1},
	})
	ctx := context.Background()

	res, err := limiter.Allow(ctx, EndpointPaymentInitiate, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, EndpointPaymentInitiate, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = limiter.Allow(ctx, EndpointPaymentInitiate, "u2")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.Allow(ctx, "unknown", "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLocalLimiter(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	limiter := NewLocalLimiter(map[string]Policy{
		EndpointUsageUpdate: {Rate: 1, Burst: 2},
	})
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, EndpointUsageUpdate, "u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := limiter.Allow(ctx, EndpointUsageUpdate, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	now = now.Add(time.Second)
	res, err = limiter.Allow(ctx, EndpointUsageUpdate, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestLockerIsExclusive(t *testing.T) {
	_, client := newMiniredis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "lock:expire", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "lock:expire", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "lock:expire", "someone-else"))
	_, ok, err = locker.TryLock(ctx, "lock:expire", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "lock:expire", token))
	_, ok, err = locker.TryLock(ctx, "lock:expire", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
