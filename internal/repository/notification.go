package repository

import (
	"context"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationFilter narrows a notification listing.
type NotificationFilter struct {
	Types            []models.NotificationType
	IncludeUnfollows bool
	UnreadOnly       bool
}

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	Insert(ctx context.Context, n *models.Notification) (bool, error)
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	List(ctx context.Context, recipientID uint, filter NotificationFilter, q models.PageQuery) ([]models.Notification, int64, error)
	SetRead(ctx context.Context, id uint, read bool) error
	MarkAllRead(ctx context.Context, recipientID uint) (int64, error)
	UnreadCount(ctx context.Context, recipientID uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Insert writes n and reports false when the dedup key already exists.
func (r *notificationRepository) Insert(ctx context.Context, n *models.Notification) (bool, error) {
	result := conn(ctx, r.db).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(n)
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var n models.Notification
	if err := conn(ctx, r.db).First(&n, id).Error; err != nil {
		return nil, notFoundOr(err, "Notification", id)
	}
	return &n, nil
}

// visible drops notifications from invisible senders, senders in a block with
// the recipient, or about invisible molts. Subqueries are built from root,
// which must not be a chained query.
func (r *notificationRepository) visible(root, query *gorm.DB, recipientID uint) *gorm.DB {
	root = root.Session(&gorm.Session{NewDB: true})
	senders := NotBlockedCrabs(VisibleCrabs(root.Model(&models.Crab{})), recipientID).Select("crabs.id")
	molts := VisibleMolts(root.Model(&models.Molt{})).Select("molts.id")
	return query.
		Where("notifications.sender_id IS NULL OR notifications.sender_id IN (?)", senders).
		Where("notifications.molt_id IS NULL OR notifications.molt_id IN (?)", molts)
}

func (r *notificationRepository) List(ctx context.Context, recipientID uint, filter NotificationFilter, q models.PageQuery) ([]models.Notification, int64, error) {
	db := conn(ctx, r.db)
	base := r.visible(db, db.Model(&models.Notification{}), recipientID).
		Where("notifications.recipient_id = ?", recipientID)
	if !filter.IncludeUnfollows {
		base = base.Where("notifications.type <> ?", models.NotificationUnfollow)
	}
	if len(filter.Types) > 0 {
		base = base.Where("notifications.type IN ?", filter.Types)
	}
	if filter.UnreadOnly {
		base = base.Where("notifications.read = ?", false)
	}
	base = withCursor(base, q, "notifications.created_at", "notifications.id").Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var notifications []models.Notification
	err := withWindow(base.Order("notifications.created_at DESC").Order("notifications.id DESC"), q).
		Preload("Sender").
		Preload("Molt").
		Find(&notifications).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return notifications, total, nil
}

func (r *notificationRepository) SetRead(ctx context.Context, id uint, read bool) error {
	result := conn(ctx, r.db).Model(&models.Notification{}).Where("id = ?", id).Update("read", read)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Notification", id)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	result := conn(ctx, r.db).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, models.NewInternalError(result.Error)
	}
	return result.RowsAffected, nil
}

// UnreadCount counts unread notifications the default listing would show.
func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	db := conn(ctx, r.db)
	var count int64
	err := r.visible(db, db.Model(&models.Notification{}), recipientID).
		Where("notifications.recipient_id = ? AND notifications.read = ? AND notifications.type <> ?",
			recipientID, false, models.NotificationUnfollow).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
