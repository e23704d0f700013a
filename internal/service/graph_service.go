package service

import (
	"context"

	"crabber/internal/models"
	"crabber/internal/observability"
	"crabber/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// GraphService manages follow and block edges between crabs.
type GraphService struct {
	tx            repository.Transactor
	crabs         repository.CrabRepository
	follows       repository.FollowRepository
	blocks        repository.BlockRepository
	notifications *NotificationService
	awards        *AwardService
}

func NewGraphService(
	tx repository.Transactor,
	crabs repository.CrabRepository,
	follows repository.FollowRepository,
	blocks repository.BlockRepository,
	notifications *NotificationService,
	awards *AwardService,
) *GraphService {
	return &GraphService{
		tx:            tx,
		crabs:         crabs,
		follows:       follows,
		blocks:        blocks,
		notifications: notifications,
		awards:        awards,
	}
}

// Follow makes actor follow target. Following yourself or an existing edge is
// a no-op. Crabs in a block with each other cannot follow.
func (s *GraphService) Follow(ctx context.Context, actorID, targetID uint) (err error) {
	ctx, span := observability.StartSpan(ctx, "GraphService.Follow",
		attribute.Int64("actor.id", int64(actorID)),
		attribute.Int64("target.id", int64(targetID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if actorID == targetID {
		return nil
	}
	changed := false
	defer func() {
		if err == nil && changed {
			observability.SocialActions.WithLabelValues("follow").Inc()
		}
	}()
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		actor, err := s.crabs.GetByID(ctx, actorID)
		if err != nil {
			return err
		}
		if _, err := s.crabs.GetByID(ctx, targetID); err != nil {
			return err
		}
		blocked, err := s.blocks.Between(ctx, actorID, targetID)
		if err != nil {
			return err
		}
		if blocked {
			return models.NewForbiddenError("cannot follow a blocked crab")
		}
		created, err := s.follows.Insert(ctx, actorID, targetID)
		if err != nil || !created {
			return err
		}
		changed = true

		if err := s.notifications.notifyQuietly(ctx, NotifyInput{
			RecipientID: targetID,
			SenderID:    &actor.ID,
			Type:        models.NotificationFollow,
			Link:        "/user/" + actor.Username,
		}); err != nil {
			return err
		}
		if err := s.awards.CheckFollowers(ctx, targetID); err != nil {
			return err
		}
		return s.awards.CheckVerifiedFollower(ctx, actor, targetID)
	})
}

// Unfollow removes the edge actor -> target if it exists.
func (s *GraphService) Unfollow(ctx context.Context, actorID, targetID uint) (err error) {
	ctx, span := observability.StartSpan(ctx, "GraphService.Unfollow",
		attribute.Int64("actor.id", int64(actorID)),
		attribute.Int64("target.id", int64(targetID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if actorID == targetID {
		return nil
	}
	changed := false
	defer func() {
		if err == nil && changed {
			observability.SocialActions.WithLabelValues("unfollow").Inc()
		}
	}()
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		actor, err := s.crabs.GetByID(ctx, actorID)
		if err != nil {
			return err
		}
		removed, err := s.follows.Delete(ctx, actorID, targetID)
		if err != nil || !removed {
			return err
		}
		changed = true
		return s.notifications.notifyQuietly(ctx, NotifyInput{
			RecipientID: targetID,
			SenderID:    &actor.ID,
			Type:        models.NotificationUnfollow,
			Link:        "/user/" + actor.Username,
		})
	})
}

// Block makes actor block target and drops the follows between them in both
// directions. Blocking yourself or blocking twice is a no-op.
func (s *GraphService) Block(ctx context.Context, actorID, targetID uint) (err error) {
	ctx, span := observability.StartSpan(ctx, "GraphService.Block",
		attribute.Int64("actor.id", int64(actorID)),
		attribute.Int64("target.id", int64(targetID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	if actorID == targetID {
		return nil
	}
	changed := false
	defer func() {
		if err == nil && changed {
			observability.SocialActions.WithLabelValues("block").Inc()
		}
	}()
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, actorID); err != nil {
			return err
		}
		if _, err := s.crabs.GetByID(ctx, targetID); err != nil {
			return err
		}
		created, err := s.blocks.Insert(ctx, actorID, targetID)
		if err != nil || !created {
			return err
		}
		changed = true
		if _, err := s.follows.Delete(ctx, actorID, targetID); err != nil {
			return err
		}
		_, err = s.follows.Delete(ctx, targetID, actorID)
		return err
	})
}

// Unblock removes the block actor -> target if it exists. Follows dropped by
// the block are not restored.
func (s *GraphService) Unblock(ctx context.Context, actorID, targetID uint) (err error) {
	ctx, span := observability.StartSpan(ctx, "GraphService.Unblock",
		attribute.Int64("actor.id", int64(actorID)),
		attribute.Int64("target.id", int64(targetID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	removed, err := s.blocks.Delete(ctx, actorID, targetID)
	if err == nil && removed {
		observability.SocialActions.WithLabelValues("unblock").Inc()
	}
	return err
}

func (s *GraphService) IsBlocking(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	return s.blocks.Exists(ctx, blockerID, blockedID)
}

// Blocked lists the visible crabs the crab has blocked.
func (s *GraphService) Blocked(ctx context.Context, crabID uint, q models.PageQuery) (models.Page[models.Crab], error) {
	items, total, err := s.blocks.Blocked(ctx, crabID, q)
	if err != nil {
		return models.Page[models.Crab]{}, err
	}
	return models.NewPage(items, total, q), nil
}

func (s *GraphService) IsFollowing(ctx context.Context, followerID, followingID uint) (bool, error) {
	return s.follows.Exists(ctx, followerID, followingID)
}

// Following lists the visible crabs the crab follows.
func (s *GraphService) Following(ctx context.Context, crabID uint, q models.PageQuery) (models.Page[models.Crab], error) {
	items, total, err := s.follows.Following(ctx, crabID, q)
	if err != nil {
		return models.Page[models.Crab]{}, err
	}
	return models.NewPage(items, total, q), nil
}

// Followers lists the visible crabs following the crab.
func (s *GraphService) Followers(ctx context.Context, crabID uint, q models.PageQuery) (models.Page[models.Crab], error) {
	items, total, err := s.follows.Followers(ctx, crabID, q)
	if err != nil {
		return models.Page[models.Crab]{}, err
	}
	return models.NewPage(items, total, q), nil
}

func (s *GraphService) FollowerCount(ctx context.Context, crabID uint) (int64, error) {
	return s.follows.FollowerCount(ctx, crabID)
}

func (s *GraphService) FollowingCount(ctx context.Context, crabID uint) (int64, error) {
	return s.follows.FollowingCount(ctx, crabID)
}

// MutualFollows returns the crabs a follows that also follow b.
func (s *GraphService) MutualFollows(ctx context.Context, aID, bID uint) ([]models.Crab, error) {
	return s.follows.Mutual(ctx, aID, bID)
}

// Recommended suggests up to limit crabs followed by the crabs the crab follows.
func (s *GraphService) Recommended(ctx context.Context, crabID uint, limit int) ([]models.Crab, error) {
	return s.follows.Recommended(ctx, crabID, limit)
}
