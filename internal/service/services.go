package service

import (
	"crabber/internal/cache"
	"crabber/internal/config"
	"crabber/internal/repository"

	"gorm.io/gorm"
)

// Services bundles every service over one database.
type Services struct {
	Identity      *IdentityService
	Graph         *GraphService
	Content       *ContentService
	Engagement    *EngagementService
	Feed          *FeedService
	Notifications *NotificationService
	Awards        *AwardService
	Tokens        *TokenService
}

// Options configures New. Zero values fall back to the defaults.
type Options struct {
	Cache  *cache.Cache
	Limits *config.Limits
	Rules  *config.AwardRules
	Clock  Clock
}

// New wires the repositories and services over db.
func New(db *gorm.DB, opts Options) *Services {
	limits := config.DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}
	rules := config.DefaultAwardRules()
	if opts.Rules != nil {
		rules = *opts.Rules
	}
	now := opts.Clock
	if now == nil {
		now = SystemClock
	}

	tx := repository.NewTransactor(db)
	crabs := repository.NewCrabRepository(db)
	follows := repository.NewFollowRepository(db)
	blocks := repository.NewBlockRepository(db)
	molts := repository.NewMoltRepository(db)
	likes := repository.NewLikeRepository(db)
	bookmarks := repository.NewBookmarkRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	trophies := repository.NewTrophyRepository(db)
	tokens := repository.NewTokenRepository(db)
	feed := repository.NewFeedRepository(db)

	c := opts.Cache
	if c == nil {
		c = cache.New(nil)
	}

	notifications := NewNotificationService(tx, notifRepo, crabs)
	awards := NewAwardService(tx, trophies, crabs, follows, molts, likes, notifications, rules)

	return &Services{
		Identity:      NewIdentityService(tx, crabs, molts, follows, awards, c, limits, now),
		Graph:         NewGraphService(tx, crabs, follows, blocks, notifications, awards),
		Content:       NewContentService(tx, crabs, molts, notifications, awards, c, limits, now),
		Engagement:    NewEngagementService(tx, crabs, molts, likes, bookmarks, notifications, awards),
		Feed:          NewFeedService(feed, c, limits, now),
		Notifications: notifications,
		Awards:        awards,
		Tokens:        NewTokenService(tx, crabs, tokens, limits),
	}
}
