package service

import (
	"context"
	"strings"
	"time"

	"crabber/internal/cache"
	"crabber/internal/config"
	"crabber/internal/models"
	"crabber/internal/repository"
)

// FeedService serves timelines, listings and rankings.
type FeedService struct {
	feed   repository.FeedRepository
	cache  *cache.Cache
	limits config.Limits
	now    Clock
}

func NewFeedService(
	feed repository.FeedRepository,
	c *cache.Cache,
	limits config.Limits,
	now Clock,
) *FeedService {
	if now == nil {
		now = SystemClock
	}
	return &FeedService{
		feed:   feed,
		cache:  c,
		limits: limits,
		now:    now,
	}
}

type moltLister func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error)

func moltPage(ctx context.Context, q models.PageQuery, list moltLister) (models.Page[models.Molt], error) {
	items, total, err := list(ctx, q)
	if err != nil {
		return models.Page[models.Molt]{}, err
	}
	return models.NewPage(items, total, q), nil
}

// Timeline lists non-reply molts by the crab and everyone it follows, as
// seen by the crab.
func (s *FeedService) Timeline(ctx context.Context, crabID uint, q models.PageQuery) (models.Page[models.Molt], error) {
	q.ViewerID = crabID
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.Timeline(ctx, crabID, q)
	})
}

func (s *FeedService) PostsByAuthor(ctx context.Context, authorID uint, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.PostsByAuthor(ctx, authorID, q)
	})
}

func (s *FeedService) RepliesByAuthor(ctx context.Context, authorID uint, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.RepliesByAuthor(ctx, authorID, q)
	})
}

func (s *FeedService) RepliesTo(ctx context.Context, moltID uint, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.RepliesTo(ctx, moltID, q)
	})
}

func (s *FeedService) RemoltsOf(ctx context.Context, moltID uint, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.RemoltsOf(ctx, moltID, q)
	})
}

func (s *FeedService) QuotesOf(ctx context.Context, moltID uint, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.QuotesOf(ctx, moltID, q)
	})
}

func (s *FeedService) PostsMentioning(ctx context.Context, username string, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.PostsMentioning(ctx, username, q)
	})
}

func (s *FeedService) PostsRepliedToAuthor(ctx context.Context, username string, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.PostsRepliedToAuthor(ctx, username, q)
	})
}

func (s *FeedService) PostsWithTag(ctx context.Context, name string, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.PostsWithTag(ctx, name, q)
	})
}

// SearchPosts finds original molts and quotes containing text.
func (s *FeedService) SearchPosts(ctx context.Context, text string, q models.PageQuery) (models.Page[models.Molt], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Page[models.Molt]{}, models.NewValidationError("Search query is required")
	}
	return moltPage(ctx, q, func(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
		return s.feed.SearchPosts(ctx, text, q)
	})
}

// SearchUsers finds crabs by username or display name, most followed first.
func (s *FeedService) SearchUsers(ctx context.Context, text string, q models.PageQuery) (models.Page[models.Crab], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Page[models.Crab]{}, models.NewValidationError("Search query is required")
	}
	items, total, err := s.feed.SearchUsers(ctx, text, q)
	if err != nil {
		return models.Page[models.Crab]{}, err
	}
	return models.NewPage(items, total, q), nil
}

// TrendingTags ranks the limit tags used most in the last windowDays days.
// Non-positive arguments fall back to the configured trending window and limit.
func (s *FeedService) TrendingTags(ctx context.Context, windowDays, limit int) ([]models.Ranked[models.Crabtag], error) {
	days := windowDays
	if days <= 0 {
		days = s.limits.TrendingWindowDays
	}
	if limit <= 0 {
		limit = s.limits.TrendingLimit
	}
	var ranked []models.Ranked[models.Crabtag]
	err := s.cache.Aside(ctx, cache.TrendingKey(days, limit), &ranked, cache.TrendingTTL, func() error {
		var err error
		since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
		ranked, err = s.feed.TrendingTags(ctx, since, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ranked, nil
}

func (s *FeedService) MostLiked(ctx context.Context, q models.PageQuery) (models.Page[models.Ranked[models.Molt]], error) {
	items, total, err := s.feed.MostLiked(ctx, q)
	if err != nil {
		return models.Page[models.Ranked[models.Molt]]{}, err
	}
	return models.NewPage(items, total, q), nil
}

func (s *FeedService) MostReplied(ctx context.Context, q models.PageQuery) (models.Page[models.Ranked[models.Molt]], error) {
	items, total, err := s.feed.MostReplied(ctx, q)
	if err != nil {
		return models.Page[models.Ranked[models.Molt]]{}, err
	}
	return models.NewPage(items, total, q), nil
}

// MostPopularUsers ranks visible crabs by visible followers. The first page
// without a cursor or viewer is cached.
func (s *FeedService) MostPopularUsers(ctx context.Context, q models.PageQuery) (models.Page[models.Ranked[models.Crab]], error) {
	if q.Offset != 0 || q.Since != nil || q.SinceID != 0 || q.Limit <= 0 || q.ViewerID != 0 {
		return s.popularUsers(ctx, q)
	}
	var page models.Page[models.Ranked[models.Crab]]
	err := s.cache.Aside(ctx, cache.PopularCrabsKey(q.Limit), &page, cache.PopularCrabsTTL, func() error {
		var err error
		page, err = s.popularUsers(ctx, q)
		return err
	})
	return page, err
}

func (s *FeedService) popularUsers(ctx context.Context, q models.PageQuery) (models.Page[models.Ranked[models.Crab]], error) {
	items, total, err := s.feed.MostPopularUsers(ctx, q)
	if err != nil {
		return models.Page[models.Ranked[models.Crab]]{}, err
	}
	return models.NewPage(items, total, q), nil
}

// ReportedQueue lists reported molts awaiting moderation, most reported first.
func (s *FeedService) ReportedQueue(ctx context.Context, q models.PageQuery) (models.Page[models.Molt], error) {
	return moltPage(ctx, q, s.feed.ReportedQueue)
}
