package service

import (
	"context"

	"crabber/internal/models"
	"crabber/internal/observability"
	"crabber/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// EngagementService handles likes and bookmarks.
type EngagementService struct {
	tx            repository.Transactor
	crabs         repository.CrabRepository
	molts         repository.MoltRepository
	likes         repository.LikeRepository
	bookmarks     repository.BookmarkRepository
	notifications *NotificationService
	awards        *AwardService
}

func NewEngagementService(
	tx repository.Transactor,
	crabs repository.CrabRepository,
	molts repository.MoltRepository,
	likes repository.LikeRepository,
	bookmarks repository.BookmarkRepository,
	notifications *NotificationService,
	awards *AwardService,
) *EngagementService {
	return &EngagementService{
		tx:            tx,
		crabs:         crabs,
		molts:         molts,
		likes:         likes,
		bookmarks:     bookmarks,
		notifications: notifications,
		awards:        awards,
	}
}

// Like records the actor's like of a visible molt. It returns nil without
// error when the molt is already liked.
func (s *EngagementService) Like(ctx context.Context, actorID, moltID uint) (like *models.Like, err error) {
	ctx, span := observability.StartSpan(ctx, "EngagementService.Like",
		attribute.Int64("actor.id", int64(actorID)),
		attribute.Int64("molt.id", int64(moltID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, actorID); err != nil {
			return err
		}
		molt, err := s.molts.GetByID(ctx, moltID)
		if err != nil {
			return err
		}
		like, err = s.likes.Insert(ctx, actorID, moltID)
		if err != nil || like == nil {
			return err
		}

		if err := s.notifications.notifyQuietly(ctx, NotifyInput{
			RecipientID: molt.AuthorID,
			SenderID:    &like.CrabID,
			Type:        models.NotificationLike,
			MoltID:      &molt.ID,
		}); err != nil {
			return err
		}
		tags, err := s.molts.Tags(ctx, molt.ID)
		if err != nil {
			return err
		}
		return s.awards.CheckLike(ctx, molt, actorID, tags)
	})
	if err != nil {
		return nil, err
	}
	if like != nil {
		observability.SocialActions.WithLabelValues("like").Inc()
	}
	return like, nil
}

// Unlike removes the actor's like, if any.
func (s *EngagementService) Unlike(ctx context.Context, actorID, moltID uint) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		removed, err := s.likes.Delete(ctx, actorID, moltID)
		if err != nil {
			return err
		}
		if removed {
			observability.SocialActions.WithLabelValues("unlike").Inc()
		}
		return nil
	})
}

func (s *EngagementService) HasLiked(ctx context.Context, actorID, moltID uint) (bool, error) {
	return s.likes.Exists(ctx, actorID, moltID)
}

// LikeCount counts the visible crabs that liked the molt.
func (s *EngagementService) LikeCount(ctx context.Context, moltID uint) (int64, error) {
	return s.likes.CountVisibleLikers(ctx, moltID)
}

// Bookmark saves a visible molt for the actor. Bookmarking twice is a no-op.
func (s *EngagementService) Bookmark(ctx context.Context, actorID, moltID uint) (*models.Bookmark, error) {
	var bookmark *models.Bookmark
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.molts.GetByID(ctx, moltID); err != nil {
			return err
		}
		var err error
		bookmark, err = s.bookmarks.Insert(ctx, actorID, moltID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bookmark, nil
}

func (s *EngagementService) Unbookmark(ctx context.Context, actorID, moltID uint) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.bookmarks.Delete(ctx, actorID, moltID)
		return err
	})
}

func (s *EngagementService) HasBookmarked(ctx context.Context, actorID, moltID uint) (bool, error) {
	return s.bookmarks.Exists(ctx, actorID, moltID)
}

// Bookmarks lists the visible molts the crab bookmarked.
func (s *EngagementService) Bookmarks(ctx context.Context, crabID uint, q models.PageQuery) (models.Page[models.Molt], error) {
	items, total, err := s.bookmarks.List(ctx, crabID, q)
	if err != nil {
		return models.Page[models.Molt]{}, err
	}
	return models.NewPage(items, total, q), nil
}
