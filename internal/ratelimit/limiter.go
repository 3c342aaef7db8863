package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/mediavault/internal/config"
	"golang.org/x/time/rate"
)

const (
	EndpointPaymentInitiate = "payment_initiate"
	EndpointUsageUpdate     = "usage_update"

	keyUserEndpoint = "ratelimit:%s:user:%s"

	localBucketCapacity = 10000
	localBucketTTL      = 30 * time.Minute
)

type Policy struct {
	Rate  float64
	Burst int
}

// Limiter applies a per-user token bucket to a named endpoint.
type Limiter interface {
	Allow(ctx context.Context, endpoint string, userID string) (*RateLimitResult, error)
}

// Policies builds the endpoint policies from config.
func Policies(cfg config.RateLimitConfig) map[string]Policy {
	return map[string]Policy{
		EndpointPaymentInitiate: {Rate: cfg.PaymentInitiateRate, Burst: cfg.PaymentInitiateBurst},
		EndpointUsageUpdate:     {Rate: cfg.UsageUpdateRate, Burst: cfg.UsageUpdateBurst},
	}
}

// RedisLimiter shares buckets across replicas.
type RedisLimiter struct {
	bucket   *TokenBucket
	policies map[string]Policy
}

func NewRedisLimiter(bucket *TokenBucket, policies map[string]Policy) *RedisLimiter {
	return &RedisLimiter{bucket: bucket, policies: policies}
}

func (l *RedisLimiter) Allow(ctx context.Context, endpoint string, userID string) (*RateLimitResult, error) {
	policy, ok := l.policies[endpoint]
	if !ok {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyUserEndpoint, endpoint, strings.TrimSpace(userID))
	return l.bucket.Allow(ctx, key, policy.Rate, policy.Burst)
}

// LocalLimiter keeps buckets in process memory; it is used when no Redis is configured.
type LocalLimiter struct {
	policies map[string]Policy
	buckets  *expirable.LRU[string, *rate.Limiter]
	now      func() time.Time
}

func NewLocalLimiter(policies map[string]Policy) *LocalLimiter {
	return &LocalLimiter{
		policies: policies,
		buckets:  expirable.NewLRU[string, *rate.Limiter](localBucketCapacity, nil, localBucketTTL),
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, endpoint string, userID string) (*RateLimitResult, error) {
	policy, ok := l.policies[endpoint]
	if !ok {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyUserEndpoint, endpoint, strings.TrimSpace(userID))
	if err := validate(key, policy.Rate, policy.Burst); err != nil {
		return &RateLimitResult{Allowed: false}, err
	}

	limiter, ok := l.buckets.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(policy.Rate), policy.Burst)
		l.buckets.Add(key, limiter)
	}

	now := l.now()
	allowed := limiter.AllowN(now, 1)
	remaining := limiter.TokensAt(now)

	retryAfter := time.Duration(0)
	if !allowed {
		retryAfter = refillDelay(remaining, policy.Rate)
	}
	return &RateLimitResult{
		Allowed:    allowed,
		Limit:      policy.Burst,
		Remaining:  int(remaining),
		ResetTime:  now.Add(retryAfter),
		RetryAfter: retryAfter,
	}, nil
}
