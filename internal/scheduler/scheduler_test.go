package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/mediavault/internal/clock"
	"github.com/smallbiznis/mediavault/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscriptions struct {
	subscriptiondomain.Service

	mu      sync.Mutex
	pending int
	calls   []int
	err     error
	block   bool
}

func (f *fakeSubscriptions) ExpireDue(ctx context.Context, limit int) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, limit)
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	moved := min(limit, f.pending)
	f.pending -= moved
	return moved, nil
}

func (f *fakeSubscriptions) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScheduler(t *testing.T, subs subscriptiondomain.Service, locker *ratelimit.Locker, cfg Config) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	s, err := New(Params{
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           clock.NewFakeClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)),
		SubscriptionSvc: subs,
		Locker:          locker,
		Config:          cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestExpireSubscriptionsDrainsInBatches(t *testing.T) {
	subs := &fakeSubscriptions{pending: 7}
	s := newTestScheduler(t, subs, nil, Config{BatchSize: 3})

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 0, subs.pending)
	assert.Equal(t, []int{3, 3, 3}, subs.calls)
}

func TestExpireSubscriptionsStopsOnEmptyBatch(t *testing.T) {
	subs := &fakeSubscriptions{}
	s := newTestScheduler(t, subs, nil, Config{BatchSize: 50})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, subs.callCount())
}

func TestRunJobTimeoutDoesNotReturnError(t *testing.T) {
	subs := &fakeSubscriptions{block: true}
	s := newTestScheduler(t, subs, nil, Config{JobTimeout: 5 * time.Millisecond})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestRunJobWrapsFailures(t *testing.T) {
	boom := errors.New("db down")
	subs := &fakeSubscriptions{err: boom}
	s := newTestScheduler(t, subs, nil, Config{})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobExpireSubscriptions)
}

func TestRunJobSkipsWhileLeaseHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := ratelimit.NewLocker(client)

	ctx := context.Background()
	key := lockKeyPrefix + JobExpireSubscriptions
	token, ok, err := locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	subs := &fakeSubscriptions{pending: 2}
	s := newTestScheduler(t, subs, locker, Config{})

	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, 0, subs.callCount())

	require.NoError(t, locker.Release(ctx, key, token))
	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, 0, subs.pending)
	assert.False(t, mr.Exists(key), "lease should be released after the run")
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}
