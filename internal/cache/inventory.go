package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"crabber/internal/observability"
)

const (
	TrendingKeyPrefix     = "crabtags:trending:%d:%d"
	PopularCrabsKeyPrefix = "crabs:popular:%d"
)

const (
	TrendingTTL     = time.Minute
	PopularCrabsTTL = 5 * time.Minute
)

// TrendingKey caches trending tags for a window and limit.
func TrendingKey(windowDays, limit int) string {
	return fmt.Sprintf(TrendingKeyPrefix, windowDays, limit)
}

// rankingPatterns match every cached ranking page, whatever its parameters.
var rankingPatterns = []string{"crabtags:trending:*", "crabs:popular:*"}

// InvalidateRankings drops every cached trending and popularity page.
func (c *Cache) InvalidateRankings(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	for _, pattern := range rankingPatterns {
		var keys []string
		iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			observability.Logger.WarnContext(ctx, "cache scan failed", slog.String("pattern", pattern), slog.String("error", err.Error()))
			continue
		}
		c.Invalidate(ctx, keys...)
	}
}

// PopularCrabsKey caches the first page of the popularity ranking.
func PopularCrabsKey(limit int) string {
	return fmt.Sprintf(PopularCrabsKeyPrefix, limit)
}
