package service

import (
	"context"
	"errors"
	"log/slog"

	"crabber/internal/models"
	"crabber/internal/observability"
	"crabber/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// ErrSelfNotification is returned when a crab would notify itself. Callers
// that fan out notifications ignore it.
var ErrSelfNotification = errors.New("sender is the recipient")

// NotifyInput describes one notification.
type NotifyInput struct {
	RecipientID uint
	SenderID    *uint
	Type        models.NotificationType
	MoltID      *uint
	Content     string
	Link        string
}

// NotificationService delivers and lists notifications.
type NotificationService struct {
	tx            repository.Transactor
	notifications repository.NotificationRepository
	crabs         repository.CrabRepository
}

func NewNotificationService(
	tx repository.Transactor,
	notifications repository.NotificationRepository,
	crabs repository.CrabRepository,
) *NotificationService {
	return &NotificationService{
		tx:            tx,
		notifications: notifications,
		crabs:         crabs,
	}
}

// Notify stores a notification. It returns nil without error when the dedup
// key already exists or the recipient is not visible.
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (n *models.Notification, err error) {
	ctx, span := observability.StartSpan(ctx, "NotificationService.Notify",
		attribute.String("notification.type", string(in.Type)))
	defer func() { observability.EndSpan(span, err) }()

	if !in.Type.Valid() {
		return nil, models.NewValidationError("Unknown notification type")
	}
	if in.SenderID != nil && *in.SenderID == in.RecipientID {
		return nil, ErrSelfNotification
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.crabs.GetByID(ctx, in.RecipientID); err != nil {
			if models.IsCode(err, models.CodeNotFound) {
				return nil
			}
			return err
		}
		candidate := &models.Notification{
			RecipientID: in.RecipientID,
			SenderID:    in.SenderID,
			Type:        in.Type,
			MoltID:      in.MoltID,
			Content:     in.Content,
			Link:        in.Link,
		}
		created, err := s.notifications.Insert(ctx, candidate)
		if err != nil {
			return err
		}
		if created {
			n = candidate
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if n != nil {
		observability.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	}
	return n, nil
}

// notifyQuietly sends a notification as a side effect of another action.
// Self notifications are dropped; storage errors are returned.
func (s *NotificationService) notifyQuietly(ctx context.Context, in NotifyInput) error {
	_, err := s.Notify(ctx, in)
	if errors.Is(err, ErrSelfNotification) {
		return nil
	}
	return err
}

// Notifications lists the crab's notifications, newest first.
func (s *NotificationService) Notifications(ctx context.Context, crabID uint, filter repository.NotificationFilter, q models.PageQuery) (models.Page[models.Notification], error) {
	items, total, err := s.notifications.List(ctx, crabID, filter, q)
	if err != nil {
		return models.Page[models.Notification]{}, err
	}
	return models.NewPage(items, total, q), nil
}

// MarkRead sets the read flag of one of the crab's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, crabID, notificationID uint, read bool) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.notifications.GetByID(ctx, notificationID)
		if err != nil {
			return err
		}
		if n.RecipientID != crabID {
			return models.NewForbiddenError("Not your notification")
		}
		return s.notifications.SetRead(ctx, notificationID, read)
	})
}

// MarkAllRead marks every unread notification of the crab as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, crabID uint) (int64, error) {
	var marked int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		marked, err = s.notifications.MarkAllRead(ctx, crabID)
		return err
	})
	if err != nil {
		return 0, err
	}
	observability.Logger.DebugContext(ctx, "Notifications marked read",
		slog.Uint64("crab_id", uint64(crabID)),
		slog.Int64("count", marked),
	)
	return marked, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, crabID uint) (int64, error) {
	return s.notifications.UnreadCount(ctx, crabID)
}
