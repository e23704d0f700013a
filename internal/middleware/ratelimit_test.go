package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// downRedis returns a client whose server is already gone. Retries are off
// so each command fails after one short dial.
func downRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()
	return rdb
}

func TestCheckRateLimit(t *testing.T) {
	ctx := context.Background()

	t.Run("nil client", func(t *testing.T) {
		_, err := CheckRateLimit(ctx, nil, "molts", "1", 1, time.Minute)
		assert.ErrorIs(t, err, ErrNoRedis)
	})

	t.Run("fixed window", func(t *testing.T) {
		mr, rdb := newMiniredis(t)
		for i := 0; i < 3; i++ {
			allowed, err := CheckRateLimit(ctx, rdb, "molts", "1", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := CheckRateLimit(ctx, rdb, "molts", "1", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)

		allowed, err = CheckRateLimit(ctx, rdb, "molts", "2", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "windows are per caller")

		assert.Equal(t, time.Minute, mr.TTL("rl:molts:1"))
		mr.FastForward(time.Minute)
		allowed, err = CheckRateLimit(ctx, rdb, "molts", "1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		l := NewRateLimiter(nil, false)
		for i := 0; i < 5; i++ {
			allowed, err := l.Allow(ctx, "r", "1", 1, time.Minute, FailClosed)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
	})

	t.Run("local bucket without redis", func(t *testing.T) {
		l := NewRateLimiter(nil, true)
		allowed, err := l.Allow(ctx, "r", "1", 2, time.Hour, FailOpen)
		require.NoError(t, err)
		assert.True(t, allowed)
		allowed, _ = l.Allow(ctx, "r", "1", 2, time.Hour, FailOpen)
		assert.True(t, allowed)
		allowed, _ = l.Allow(ctx, "r", "1", 2, time.Hour, FailOpen)
		assert.False(t, allowed)
	})

	t.Run("redis down", func(t *testing.T) {
		l := NewRateLimiter(downRedis(t), true)
		allowed, err := l.Allow(ctx, "r", "1", 1, time.Hour, FailOpen)
		require.NoError(t, err)
		assert.True(t, allowed, "fail-open limits locally")

		_, err = l.Allow(ctx, "r", "1", 1, time.Hour, FailClosed)
		assert.Error(t, err)
	})
}

func TestRateLimiter_Handler(t *testing.T) {
	_, rdb := newMiniredis(t)
	l := NewRateLimiter(rdb, true)

	app := fiber.New()
	app.Get("/limited", l.Handler(2, time.Minute, FailOpen, "limited"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/limited", nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestRateLimiter_HandlerFailClosed(t *testing.T) {
	l := NewRateLimiter(downRedis(t), true)

	app := fiber.New()
	app.Post("/critical", l.Handler(10, time.Minute, FailClosed), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	app.Post("/open", l.Handler(1, time.Minute, FailOpen, "open"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/critical", nil), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/open", nil), -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "fail-open falls back to the local bucket")
}
