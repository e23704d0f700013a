package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crabber/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen falls back to an in-process limiter if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// ErrNoRedis is returned by CheckRateLimit without a client.
var ErrNoRedis = errors.New("redis client is nil")

// CheckRateLimit counts a hit against a fixed Redis window. It returns true if
// the hit is within limit.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	if rdb == nil {
		return false, ErrNoRedis
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	cnt, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		observability.RedisErrors.WithLabelValues("incr").Inc()
		return false, err
	}
	if cnt == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			observability.RedisErrors.WithLabelValues("expire").Inc()
		}
	}
	return cnt <= int64(limit), nil
}

// RateLimiter enforces per-caller request budgets. Redis holds the shared
// counters; a token bucket per key stands in when Redis is absent.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRateLimiter returns a limiter. A nil client limits in-process only.
func NewRateLimiter(rdb *redis.Client, enabled bool) *RateLimiter {
	return &RateLimiter{rdb: rdb, enabled: enabled, local: make(map[string]*rate.Limiter)}
}

func (l *RateLimiter) allowLocal(resource, id string, limit int, window time.Duration) bool {
	key := resource + ":" + id
	l.mu.Lock()
	lim, ok := l.local[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		l.local[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Allow records a hit for id on resource.
func (l *RateLimiter) Allow(ctx context.Context, resource, id string, limit int, window time.Duration, policy FailPolicy) (bool, error) {
	if !l.enabled || limit <= 0 {
		return true, nil
	}
	if l.rdb == nil {
		return l.allowLocal(resource, id, limit, window), nil
	}

	allowed, err := CheckRateLimit(ctx, l.rdb, resource, id, limit, window)
	if err == nil {
		return allowed, nil
	}
	if policy == FailClosed {
		return false, err
	}
	observability.Logger.WarnContext(ctx, "rate limit store unavailable, limiting locally",
		"resource", resource, "error", err)
	return l.allowLocal(resource, id, limit, window), nil
}

// Handler returns a Fiber middleware enforcing limit requests per window.
// It keys by the authenticated crab when there is one, otherwise by remote IP.
func (l *RateLimiter) Handler(limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if crabID := CurrentCrabID(c); crabID != 0 {
			id = fmt.Sprintf("crab:%d", crabID)
		} else {
			id = fmt.Sprintf("ip:%s", c.IP())
		}

		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		allowed, err := l.Allow(c.UserContext(), resource, id, limit, window, policy)
		if err != nil {
			observability.Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
				"path", c.Path(), "resource", resource, "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "rate limit unavailable",
				"code":  "RATE_LIMIT_UNAVAILABLE",
			})
		}
		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
				"code":  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
