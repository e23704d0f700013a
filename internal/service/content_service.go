// Package service contains the business logic of the application.
package service

import (
	"context"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"crabber/internal/cache"
	"crabber/internal/config"
	"crabber/internal/models"
	"crabber/internal/observability"
	"crabber/internal/repository"
	"crabber/internal/richtext"

	"go.opentelemetry.io/otel/attribute"
)

// Clock returns the current time in UTC.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// MoltOptions carries the optional parts of a new molt.
type MoltOptions struct {
	Image  string
	Source string
}

// ContentService creates, edits and moderates molts.
type ContentService struct {
	tx            repository.Transactor
	crabs         repository.CrabRepository
	molts         repository.MoltRepository
	notifications *NotificationService
	awards        *AwardService
	rankings      *cache.Cache
	limits        config.Limits
	now           Clock
}

func NewContentService(
	tx repository.Transactor,
	crabs repository.CrabRepository,
	molts repository.MoltRepository,
	notifications *NotificationService,
	awards *AwardService,
	rankings *cache.Cache,
	limits config.Limits,
	now Clock,
) *ContentService {
	if now == nil {
		now = SystemClock
	}
	return &ContentService{
		tx:            tx,
		crabs:         crabs,
		molts:         molts,
		notifications: notifications,
		awards:        awards,
		rankings:      rankings,
		limits:        limits,
		now:           now,
	}
}

type newMolt struct {
	authorID   uint
	content    string
	kind       models.MoltKind
	originalID *uint
	opts       MoltOptions
}

// truncateRunes cuts s to at most limit runes.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func (s *ContentService) validateLength(content string) error {
	if utf8.RuneCountInString(content) > s.limits.MoltCharLimit {
		return models.NewValidationError("Molt is too long")
	}
	return nil
}

// CreateMolt posts an original molt, silently truncating over-long content.
func (s *ContentService) CreateMolt(ctx context.Context, authorID uint, content string, opts MoltOptions) (*models.Molt, error) {
	return s.create(ctx, newMolt{
		authorID: authorID,
		content:  truncateRunes(content, s.limits.MoltCharLimit),
		kind:     models.MoltKindOriginal,
		opts:     opts,
	})
}

// CreateMoltValidated posts an original molt, rejecting content beyond the
// character limit and molts with neither content nor an image.
func (s *ContentService) CreateMoltValidated(ctx context.Context, authorID uint, content string, opts MoltOptions) (*models.Molt, error) {
	if strings.TrimSpace(content) == "" && opts.Image == "" {
		return nil, models.NewValidationError("Molt has no content")
	}
	if err := s.validateLength(content); err != nil {
		return nil, err
	}
	return s.create(ctx, newMolt{
		authorID: authorID,
		content:  content,
		kind:     models.MoltKindOriginal,
		opts:     opts,
	})
}

func (s *ContentService) create(ctx context.Context, in newMolt) (molt *models.Molt, err error) {
	ctx, span := observability.StartSpan(ctx, "ContentService.create",
		attribute.String("molt.kind", string(in.kind)),
		attribute.Int64("author.id", int64(in.authorID)),
	)
	defer func() { observability.EndSpan(span, err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		author, err := s.crabs.GetByID(ctx, in.authorID)
		if err != nil {
			return err
		}
		molt = &models.Molt{
			AuthorID:       author.ID,
			Content:        in.content,
			Kind:           in.kind,
			OriginalMoltID: in.originalID,
			Image:          in.opts.Image,
			Source:         in.opts.Source,
			CreatedAt:      s.now(),
		}
		if err := s.molts.Create(ctx, molt); err != nil {
			return err
		}
		molt.Author = *author

		tags, err := s.index(ctx, molt)
		if err != nil {
			return err
		}
		if err := s.awards.CheckMolts(ctx, author.ID); err != nil {
			return err
		}
		return s.awards.CheckTags(ctx, author.ID, tags)
	})
	if err != nil {
		return nil, err
	}
	observability.SocialActions.WithLabelValues(string(in.kind)).Inc()
	return molt, nil
}

// index derives the molt's tags and mentions from its content and notifies
// mentioned crabs. Renotifying a crab already told about this molt is a no-op.
func (s *ContentService) index(ctx context.Context, molt *models.Molt) ([]string, error) {
	tags := richtext.Tags(molt.Content)
	if err := s.molts.ReplaceTags(ctx, molt.ID, tags); err != nil {
		return nil, err
	}

	mentions := richtext.Mentions(molt.Content)
	if err := s.molts.ReplaceMentions(ctx, molt.ID, mentions); err != nil {
		return nil, err
	}
	mentioned, err := s.crabs.VisibleUsernames(ctx, mentions)
	if err != nil {
		return nil, err
	}
	for _, username := range mentions {
		recipientID, ok := mentioned[username]
		if !ok {
			continue
		}
		if err := s.notifications.notifyQuietly(ctx, NotifyInput{
			RecipientID: recipientID,
			SenderID:    &molt.AuthorID,
			Type:        models.NotificationMention,
			MoltID:      &molt.ID,
		}); err != nil {
			return nil, err
		}
	}
	return tags, nil
}

// GetMolt returns a visible molt.
func (s *ContentService) GetMolt(ctx context.Context, moltID uint) (*models.Molt, error) {
	return s.molts.GetByID(ctx, moltID)
}

// Tags returns the molt's tag names.
func (s *ContentService) Tags(ctx context.Context, moltID uint) ([]string, error) {
	return s.molts.Tags(ctx, moltID)
}

// EditMolt replaces the content of the actor's molt while it is still editable.
func (s *ContentService) EditMolt(ctx context.Context, actorID, moltID uint, content string) (molt *models.Molt, err error) {
	ctx, span := observability.StartSpan(ctx, "ContentService.EditMolt", attribute.Int64("molt.id", int64(moltID)))
	defer func() { observability.EndSpan(span, err) }()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		molt, err = s.molts.GetByID(ctx, moltID)
		if err != nil {
			return err
		}
		if molt.AuthorID != actorID {
			return models.NewForbiddenError("You can only edit your own molts")
		}
		if molt.Kind == models.MoltKindRemolt {
			return models.NewNotEditableError("Remolts cannot be edited")
		}
		if s.now().Sub(molt.CreatedAt) >= s.limits.EditWindow {
			return models.NewNotEditableError("Molt is no longer editable")
		}
		if err := s.validateLength(content); err != nil {
			return err
		}
		if err := s.molts.UpdateContent(ctx, moltID, content); err != nil {
			return err
		}
		molt.Content = content
		molt.Edited = true

		tags, err := s.index(ctx, molt)
		if err != nil {
			return err
		}
		return s.awards.CheckTags(ctx, actorID, tags)
	})
	if err != nil {
		return nil, err
	}
	observability.SocialActions.WithLabelValues("edit").Inc()
	return molt, nil
}

// Reply posts a reply to a visible molt and notifies its author.
func (s *ContentService) Reply(ctx context.Context, actorID, moltID uint, content string, opts MoltOptions) (*models.Molt, error) {
	if strings.TrimSpace(content) == "" && opts.Image == "" {
		return nil, models.NewValidationError("Reply has no content")
	}
	if err := s.validateLength(content); err != nil {
		return nil, err
	}

	var reply *models.Molt
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		original, err := s.molts.GetByID(ctx, moltID)
		if err != nil {
			return err
		}
		reply, err = s.create(ctx, newMolt{
			authorID:   actorID,
			content:    content,
			kind:       models.MoltKindReply,
			originalID: &original.ID,
			opts:       opts,
		})
		if err != nil {
			return err
		}
		reply.OriginalMolt = original
		return s.notifications.notifyQuietly(ctx, NotifyInput{
			RecipientID: original.AuthorID,
			SenderID:    &reply.AuthorID,
			Type:        models.NotificationReply,
			MoltID:      &reply.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// Remolt shares a visible molt. It returns nil without error when the actor
// already has a live remolt of it. Remolting a remolt shares its original.
func (s *ContentService) Remolt(ctx context.Context, actorID, moltID uint) (*models.Molt, error) {
	var remolt *models.Molt
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		original, err := s.molts.GetByID(ctx, moltID)
		if err != nil {
			return err
		}
		if original.Kind == models.MoltKindRemolt && original.OriginalMolt != nil {
			original = original.OriginalMolt
		}
		existing, err := s.molts.FindLiveRemolt(ctx, actorID, original.ID)
		if err != nil || existing != nil {
			return err
		}
		remolt, err = s.create(ctx, newMolt{
			authorID:   actorID,
			kind:       models.MoltKindRemolt,
			originalID: &original.ID,
		})
		if err != nil {
			return err
		}
		remolt.OriginalMolt = original
		return s.notifications.notifyQuietly(ctx, NotifyInput{
			RecipientID: original.AuthorID,
			SenderID:    &remolt.AuthorID,
			Type:        models.NotificationRemolt,
			MoltID:      &original.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return remolt, nil
}

// Quote shares a visible molt with commentary.
func (s *ContentService) Quote(ctx context.Context, actorID, moltID uint, content string, opts MoltOptions) (*models.Molt, error) {
	if strings.TrimSpace(content) == "" {
		return nil, models.NewValidationError("Quote needs content")
	}
	if err := s.validateLength(content); err != nil {
		return nil, err
	}

	var quote *models.Molt
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		original, err := s.molts.GetByID(ctx, moltID)
		if err != nil {
			return err
		}
		quote, err = s.create(ctx, newMolt{
			authorID:   actorID,
			content:    content,
			kind:       models.MoltKindQuote,
			originalID: &original.ID,
			opts:       opts,
		})
		if err != nil {
			return err
		}
		quote.OriginalMolt = original
		return s.notifications.notifyQuietly(ctx, NotifyInput{
			RecipientID: original.AuthorID,
			SenderID:    &quote.AuthorID,
			Type:        models.NotificationQuote,
			MoltID:      &quote.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// DeleteMolt soft-deletes the actor's molt. Deleting a remolt undoes it.
func (s *ContentService) DeleteMolt(ctx context.Context, actorID, moltID uint) error {
	return s.setDeleted(ctx, actorID, moltID, true)
}

// RestoreMolt undoes DeleteMolt.
func (s *ContentService) RestoreMolt(ctx context.Context, actorID, moltID uint) error {
	return s.setDeleted(ctx, actorID, moltID, false)
}

func (s *ContentService) setDeleted(ctx context.Context, actorID, moltID uint, deleted bool) error {
	return s.invalidatingRankings(ctx, func(ctx context.Context) error {
		molt, err := s.molts.GetByIDIncludingInvisible(ctx, moltID)
		if err != nil {
			return err
		}
		if molt.AuthorID != actorID {
			return models.NewForbiddenError("You can only delete your own molts")
		}
		return s.molts.SetDeleted(ctx, moltID, deleted)
	})
}

// ModerateMolt deletes or restores any molt.
func (s *ContentService) ModerateMolt(ctx context.Context, moltID uint, deleted bool) error {
	return s.invalidatingRankings(ctx, func(ctx context.Context) error {
		if _, err := s.molts.GetByIDIncludingInvisible(ctx, moltID); err != nil {
			return err
		}
		return s.molts.SetDeleted(ctx, moltID, deleted)
	})
}

// invalidatingRankings runs fn in a transaction and drops cached rankings
// once it commits.
func (s *ContentService) invalidatingRankings(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.tx.WithinTx(ctx, fn); err != nil {
		return err
	}
	s.rankings.InvalidateRankings(ctx)
	return nil
}

// Report flags a visible molt for moderation.
func (s *ContentService) Report(ctx context.Context, moltID uint) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.molts.GetByID(ctx, moltID); err != nil {
			return err
		}
		return s.molts.IncrementReports(ctx, moltID)
	})
}

// Approve clears a molt from the report queue.
func (s *ContentService) Approve(ctx context.Context, moltID uint) error {
	return s.setApproved(ctx, moltID, true)
}

func (s *ContentService) Unapprove(ctx context.Context, moltID uint) error {
	return s.setApproved(ctx, moltID, false)
}

func (s *ContentService) setApproved(ctx context.Context, moltID uint, approved bool) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.molts.GetByIDIncludingInvisible(ctx, moltID); err != nil {
			return err
		}
		return s.molts.SetApproved(ctx, moltID, approved)
	})
}

// Render escapes content and renders it to display HTML, linking mentions of
// visible crabs only.
func (s *ContentService) Render(ctx context.Context, content string) (string, error) {
	escaped := html.EscapeString(content)
	visible, err := s.crabs.VisibleUsernames(ctx, richtext.Mentions(escaped))
	if err != nil {
		return "", err
	}
	return richtext.Render(escaped, func(username string) bool {
		_, ok := visible[username]
		return ok
	}), nil
}
