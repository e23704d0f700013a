package models

import (
	"time"
)

// MoltKind is the relation a molt has to its original, if any.
type MoltKind string

const (
	// MoltKindOriginal is a standalone molt.
	MoltKindOriginal MoltKind = "original"
	// MoltKindReply answers another molt.
	MoltKindReply MoltKind = "reply"
	// MoltKindRemolt shares another molt without content of its own.
	MoltKindRemolt MoltKind = "remolt"
	// MoltKindQuote shares another molt with commentary.
	MoltKindQuote MoltKind = "quote"
)

// Molt is a post.
type Molt struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AuthorID       uint      `gorm:"not null;index" json:"author_id"`
	Author         Crab      `gorm:"foreignKey:AuthorID" json:"author"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Kind           MoltKind  `gorm:"size:16;not null;index" json:"kind"`
	OriginalMoltID *uint     `gorm:"index" json:"original_molt_id,omitempty"`
	OriginalMolt   *Molt     `gorm:"foreignKey:OriginalMoltID" json:"original_molt,omitempty"`
	Image          string    `gorm:"size:512;not null;default:''" json:"image,omitempty"`
	Source         string    `gorm:"size:128;not null;default:''" json:"source,omitempty"`
	Edited         bool      `gorm:"not null;default:false" json:"edited"`
	Reports        int       `gorm:"not null;default:0" json:"-"`
	Approved       bool      `gorm:"not null;default:false" json:"-"`
	Deleted        bool      `gorm:"not null;default:false;index" json:"-"`
	CreatedAt      time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Molt) TableName() string {
	return "molts"
}

// Crabtag is a lowercase tag name shared by every molt that uses it.
type Crabtag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:256;not null;uniqueIndex" json:"name"`
}

// TableName specifies the table name for GORM
func (Crabtag) TableName() string {
	return "crabtags"
}

// CrabtagLink joins molts to their tags.
type CrabtagLink struct {
	MoltID uint `gorm:"primaryKey;autoIncrement:false" json:"molt_id"`
	TagID  uint `gorm:"primaryKey;autoIncrement:false;index" json:"tag_id"`
}

// TableName specifies the table name for GORM
func (CrabtagLink) TableName() string {
	return "crabtag_links"
}

// MoltMention records a lowercase username mentioned by a molt.
type MoltMention struct {
	MoltID   uint   `gorm:"primaryKey;autoIncrement:false" json:"molt_id"`
	Username string `gorm:"primaryKey;size:32;index" json:"username"`
}

// TableName specifies the table name for GORM
func (MoltMention) TableName() string {
	return "molt_mentions"
}

// Like is a crab's like of a molt.
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CrabID    uint      `gorm:"not null;uniqueIndex:idx_like_crab_molt" json:"crab_id"`
	MoltID    uint      `gorm:"not null;uniqueIndex:idx_like_crab_molt;index" json:"molt_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Like) TableName() string {
	return "likes"
}

// Bookmark is a molt saved by a crab for later.
type Bookmark struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CrabID    uint      `gorm:"not null;uniqueIndex:idx_bookmark_crab_molt" json:"crab_id"`
	MoltID    uint      `gorm:"not null;uniqueIndex:idx_bookmark_crab_molt" json:"molt_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Bookmark) TableName() string {
	return "bookmarks"
}
