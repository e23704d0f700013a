package service

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crabber/internal/config"
	"crabber/internal/models"
	"crabber/internal/observability"
	"crabber/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

//go:embed trophies.yaml
var trophyCatalog []byte

// sweepBatchSize is how many crabs the anniversary sweep loads at a time.
const sweepBatchSize = 200

// AwardService grants trophies and evaluates the award rules.
type AwardService struct {
	tx            repository.Transactor
	trophies      repository.TrophyRepository
	crabs         repository.CrabRepository
	follows       repository.FollowRepository
	molts         repository.MoltRepository
	likes         repository.LikeRepository
	notifications *NotificationService
	rules         config.AwardRules
}

func NewAwardService(
	tx repository.Transactor,
	trophies repository.TrophyRepository,
	crabs repository.CrabRepository,
	follows repository.FollowRepository,
	molts repository.MoltRepository,
	likes repository.LikeRepository,
	notifications *NotificationService,
	rules config.AwardRules,
) *AwardService {
	return &AwardService{
		tx:            tx,
		trophies:      trophies,
		crabs:         crabs,
		follows:       follows,
		molts:         molts,
		likes:         likes,
		notifications: notifications,
		rules:         rules,
	}
}

// Award grants the trophy titled title to the crab. It returns nil without
// error when the crab already holds it.
func (s *AwardService) Award(ctx context.Context, crabID uint, title string) (tc *models.TrophyCase, err error) {
	ctx, span := observability.StartSpan(ctx, "AwardService.Award", attribute.String("trophy.title", title))
	defer func() { observability.EndSpan(span, err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		trophy, err := s.trophies.FindByTitle(ctx, title)
		if err != nil {
			return err
		}
		granted, err := s.trophies.InsertCase(ctx, crabID, trophy.ID)
		if err != nil || granted == nil {
			return err
		}
		granted.Trophy = *trophy

		if err := s.notifications.notifyQuietly(ctx, NotifyInput{
			RecipientID: crabID,
			Type:        models.NotificationTrophy,
			Content:     trophy.Title,
			Link:        "/trophies",
		}); err != nil {
			return err
		}
		tc = granted
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tc != nil {
		observability.TrophiesAwarded.WithLabelValues(tc.Trophy.Title).Inc()
		observability.Logger.InfoContext(ctx, "Trophy awarded",
			slog.Uint64("crab_id", uint64(crabID)),
			slog.String("title", tc.Trophy.Title),
		)
	}
	return tc, nil
}

// award is Award for rule evaluation, where holding the trophy already is normal.
func (s *AwardService) award(ctx context.Context, crabID uint, title string) error {
	if title == "" {
		return nil
	}
	_, err := s.Award(ctx, crabID, title)
	return err
}

// Trophies lists the crab's trophy case, newest first.
func (s *AwardService) Trophies(ctx context.Context, crabID uint) ([]models.TrophyCase, error) {
	if _, err := s.crabs.GetByID(ctx, crabID); err != nil {
		return nil, err
	}
	return s.trophies.ListCase(ctx, crabID)
}

// CheckFollowers evaluates follower-count and follower-ratio awards for the crab.
func (s *AwardService) CheckFollowers(ctx context.Context, crabID uint) error {
	followers, err := s.follows.FollowerCount(ctx, crabID)
	if err != nil {
		return err
	}
	for _, m := range s.rules.FollowerMilestones {
		if followers == m.Count {
			if err := s.award(ctx, crabID, m.Title); err != nil {
				return err
			}
		}
	}

	following, err := s.follows.FollowingCount(ctx, crabID)
	if err != nil {
		return err
	}
	if following == 0 || following < s.rules.RatioMinFollowing {
		return nil
	}
	ratio := float64(followers) / float64(following)
	for _, m := range s.rules.RatioMilestones {
		if ratio >= float64(m.Count) {
			if err := s.award(ctx, crabID, m.Title); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckVerifiedFollower awards the target when the follower is verified.
func (s *AwardService) CheckVerifiedFollower(ctx context.Context, follower *models.Crab, targetID uint) error {
	if !follower.Verified {
		return nil
	}
	return s.award(ctx, targetID, s.rules.VerifiedFollower)
}

// CheckMolts evaluates molt-count awards for the author.
func (s *AwardService) CheckMolts(ctx context.Context, authorID uint) error {
	count, err := s.molts.CountByAuthor(ctx, authorID)
	if err != nil {
		return err
	}
	if count == 1 {
		if err := s.award(ctx, authorID, s.rules.FirstMoltTitle); err != nil {
			return err
		}
	}
	for _, m := range s.rules.MoltMilestones {
		if count >= m.Count {
			if err := s.award(ctx, authorID, m.Title); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckTags awards the celebratory trophy of every matching tag.
func (s *AwardService) CheckTags(ctx context.Context, authorID uint, tags []string) error {
	for _, tag := range tags {
		if title, ok := s.rules.TagTrophies[tag]; ok {
			if err := s.award(ctx, authorID, title); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckLike evaluates the awards a new like can trigger: like milestones for
// the molt's author and the like trophy for the liker.
func (s *AwardService) CheckLike(ctx context.Context, molt *models.Molt, likerID uint, tags []string) error {
	likes, err := s.likes.CountVisibleLikers(ctx, molt.ID)
	if err != nil {
		return err
	}
	for _, m := range s.rules.LikeMilestones {
		if likes == m.Count {
			if err := s.award(ctx, molt.AuthorID, m.Title); err != nil {
				return err
			}
		}
	}
	if s.matchesLikeTrophy(molt.Content, tags) {
		return s.award(ctx, likerID, s.rules.LikeTrophy)
	}
	return nil
}

func (s *AwardService) matchesLikeTrophy(content string, tags []string) bool {
	lowered := strings.ToLower(content)
	for _, phrase := range s.rules.LikePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	for _, want := range s.rules.LikeTags {
		for _, tag := range tags {
			if tag == want {
				return true
			}
		}
	}
	return false
}

// IsAnniversary reports whether registered is exactly one year before now,
// to the day.
func IsAnniversary(registered, now time.Time) bool {
	registered, now = registered.UTC(), now.UTC()
	return now.Year()-registered.Year() == 1 &&
		now.Month() == registered.Month() &&
		now.Day() == registered.Day()
}

// RunAnniversarySweep awards the anniversary trophy to every visible crab that
// registered exactly one year before now. It returns the number awarded.
func (s *AwardService) RunAnniversarySweep(ctx context.Context, now time.Time) (awarded int, err error) {
	ctx, span := observability.StartSpan(ctx, "AwardService.RunAnniversarySweep")
	defer func() { observability.EndSpan(span, err) }()

	scanned := 0
	err = s.crabs.EachVisibleBatch(ctx, sweepBatchSize, func(batch []models.Crab) error {
		for _, crab := range batch {
			scanned++
			if !IsAnniversary(crab.RegisterTime, now) {
				continue
			}
			tc, err := s.Award(ctx, crab.ID, s.rules.AnniversaryTitle)
			if err != nil {
				return err
			}
			if tc != nil {
				awarded++
			}
		}
		return nil
	})
	if err != nil {
		return awarded, err
	}
	observability.Logger.InfoContext(ctx, "Anniversary sweep finished",
		slog.Int("scanned", scanned),
		slog.Int("awarded", awarded),
	)
	return awarded, nil
}

// Catalog parses the embedded trophy catalog.
func Catalog() ([]models.Trophy, error) {
	var trophies []models.Trophy
	if err := yaml.Unmarshal(trophyCatalog, &trophies); err != nil {
		return nil, fmt.Errorf("parse trophy catalog: %w", err)
	}
	for i := range trophies {
		if trophies[i].Image == "" {
			trophies[i].Image = models.DefaultTrophyImage
		}
	}
	return trophies, nil
}

// SyncCatalog inserts unknown catalog trophies and refreshes changed ones.
// It returns how many rows changed.
func (s *AwardService) SyncCatalog(ctx context.Context) (int, error) {
	trophies, err := Catalog()
	if err != nil {
		return 0, err
	}
	changed := 0
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for i := range trophies {
			updated, err := s.trophies.Upsert(ctx, &trophies[i])
			if err != nil {
				return err
			}
			if updated {
				changed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	observability.Logger.InfoContext(ctx, "Trophy catalog synced",
		slog.Int("trophies", len(trophies)),
		slog.Int("changed", changed),
	)
	return changed, nil
}
