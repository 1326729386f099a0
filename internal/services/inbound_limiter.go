package services

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// InboundLimiter caps how many messages one Telegram user may send per minute
type InboundLimiter interface {
	Allow(ctx context.Context, userID int64) bool
}

// MemoryInboundLimiter keeps a token bucket per user. Idle buckets expire so
// one-off users do not accumulate.
type MemoryInboundLimiter struct {
	perMinute int
	buckets   *cache.Cache
}

// NewMemoryInboundLimiter allows perMinute messages per user with an equal burst
func NewMemoryInboundLimiter(perMinute int) *MemoryInboundLimiter {
	return &MemoryInboundLimiter{
		perMinute: perMinute,
		buckets:   cache.New(10*time.Minute, 5*time.Minute),
	}
}

// Allow consumes one token for the user
func (l *MemoryInboundLimiter) Allow(ctx context.Context, userID int64) bool {
	if l.perMinute <= 0 {
		return true
	}

	key := strconv.FormatInt(userID, 10)
	if v, found := l.buckets.Get(key); found {
		limiter := v.(*rate.Limiter)
		l.buckets.Set(key, limiter, cache.DefaultExpiration)
		return limiter.Allow()
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
	// Another goroutine may have created the bucket first
	if err := l.buckets.Add(key, limiter, cache.DefaultExpiration); err != nil {
		if v, found := l.buckets.Get(key); found {
			limiter = v.(*rate.Limiter)
		}
	}
	return limiter.Allow()
}

// RateLimitCounter is the Redis fixed window counter
type RateLimitCounter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (remaining int64, exceeded bool, err error)
}

// RedisInboundLimiter shares the per-user window across instances
type RedisInboundLimiter struct {
	perMinute int
	counter   RateLimitCounter
}

// NewRedisInboundLimiter creates a Redis-backed limiter
func NewRedisInboundLimiter(counter RateLimitCounter, perMinute int) *RedisInboundLimiter {
	return &RedisInboundLimiter{perMinute: perMinute, counter: counter}
}

// Allow counts the message in the user's current minute window. Redis
// failures let the message through.
func (l *RedisInboundLimiter) Allow(ctx context.Context, userID int64) bool {
	if l.perMinute <= 0 {
		return true
	}

	key := "djmovie:ratelimit:telegram:" + strconv.FormatInt(userID, 10)
	_, exceeded, err := l.counter.CheckRateLimit(ctx, key, int64(l.perMinute), time.Minute)
	if err != nil {
		log.Printf("⚠️ [RATE-LIMIT] Redis check failed for user %d: %v", userID, err)
		return true
	}
	return !exceeded
}
