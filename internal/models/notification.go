package models

import (
	"time"
)

// NotificationType is the event a notification reports.
type NotificationType string

const (
	NotificationMention  NotificationType = "mention"
	NotificationReply    NotificationType = "reply"
	NotificationQuote    NotificationType = "quote"
	NotificationFollow   NotificationType = "follow"
	NotificationUnfollow NotificationType = "unfollow"
	NotificationLike     NotificationType = "like"
	NotificationRemolt   NotificationType = "remolt"
	NotificationTrophy   NotificationType = "trophy"
	NotificationWarning  NotificationType = "warning"
	NotificationOther    NotificationType = "other"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMention, NotificationReply, NotificationQuote, NotificationFollow,
		NotificationUnfollow, NotificationLike, NotificationRemolt, NotificationTrophy,
		NotificationWarning, NotificationOther:
		return true
	}
	return false
}

// Notification is an event delivered to a recipient crab.
//
// The unique index over (recipient, sender, type, molt) is the dedup key.
// Rows with a NULL sender or molt never collide.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID uint             `gorm:"not null;uniqueIndex:idx_notification_dedup;index:idx_notifications_recipient_time,priority:1" json:"recipient_id"`
	SenderID    *uint            `gorm:"uniqueIndex:idx_notification_dedup" json:"sender_id,omitempty"`
	Sender      *Crab            `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Type        NotificationType `gorm:"size:16;not null;uniqueIndex:idx_notification_dedup" json:"type"`
	MoltID      *uint            `gorm:"uniqueIndex:idx_notification_dedup" json:"molt_id,omitempty"`
	Molt        *Molt            `gorm:"foreignKey:MoltID" json:"molt,omitempty"`
	Content     string           `gorm:"type:text;not null;default:''" json:"content,omitempty"`
	Link        string           `gorm:"size:512;not null;default:''" json:"link,omitempty"`
	Read        bool             `gorm:"not null;default:false" json:"read"`
	CreatedAt   time.Time        `gorm:"not null;index:idx_notifications_recipient_time,priority:2" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}
