package models

import (
	"strings"
	"time"
)

// DefaultDescription is assigned to new crabs with no description.
const DefaultDescription = "This user has no description."

// DefaultAvatar is assigned when a crab signs up without one.
const DefaultAvatar = "https://cdn.crabber.net/avatars/default.png"

// MutedWordsLimit caps the stored, comma-joined muted words.
const MutedWordsLimit = 4096

// DefaultTimezone is the hour offset used until a crab picks one.
const DefaultTimezone = "-06.00"

// BioKeys is the whitelist of keys allowed in a crab's structured bio.
var BioKeys = []string{"age", "emoji", "jam", "obsession", "pronouns", "quote", "remember"}

// Crab is a user account.
type Crab struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:32;not null;index" json:"username"`
	Email        string    `gorm:"size:254;not null;index" json:"-"`
	Password     string    `gorm:"size:128;not null" json:"-"`
	DisplayName  string    `gorm:"size:64;not null" json:"display_name"`
	Description  string    `gorm:"size:512;not null" json:"description"`
	Location     string    `gorm:"size:128;not null;default:''" json:"location"`
	Website      string    `gorm:"size:512;not null;default:''" json:"website"`
	RawBio       string    `gorm:"type:text;not null" json:"-"`
	Avatar       string    `gorm:"size:512;not null" json:"avatar"`
	Banner       string    `gorm:"size:512;not null;default:''" json:"banner"`
	Verified     bool      `gorm:"not null;default:false" json:"verified"`
	Timezone     string    `gorm:"size:8;not null" json:"timezone"`
	Preferences  string    `gorm:"type:text;not null" json:"-"`
	MutedWords   string    `gorm:"size:4096;not null;default:''" json:"-"`
	PinnedMoltID *uint     `json:"pinned_molt_id,omitempty"`
	Deleted      bool      `gorm:"not null;default:false;index" json:"-"`
	Banned       bool      `gorm:"not null;default:false;index" json:"-"`
	RegisterTime time.Time `gorm:"not null;index" json:"register_time"`
}

// TableName specifies the table name for GORM
func (Crab) TableName() string {
	return "crabs"
}

// MutedWordList splits MutedWords into its comma-separated entries.
func (c *Crab) MutedWordList() []string {
	var words []string
	for _, w := range strings.Split(c.MutedWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Visible reports whether the crab passes the visibility policy.
func (c *Crab) Visible() bool {
	return c != nil && !c.Deleted && !c.Banned
}

// Follow is a directed edge from Follower to Following.
type Follow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FollowerID  uint      `gorm:"not null;uniqueIndex:idx_follow_pair" json:"follower_id"`
	FollowingID uint      `gorm:"not null;uniqueIndex:idx_follow_pair;index" json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`

	Follower  Crab `gorm:"foreignKey:FollowerID" json:"-"`
	Following Crab `gorm:"foreignKey:FollowingID" json:"-"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}

// Block records that Blocker no longer wants to see or be seen by Blocked.
type Block struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlockerID uint      `gorm:"not null;uniqueIndex:idx_block_pair" json:"blocker_id"`
	BlockedID uint      `gorm:"not null;uniqueIndex:idx_block_pair;index" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`

	Blocker Crab `gorm:"foreignKey:BlockerID" json:"-"`
	Blocked Crab `gorm:"foreignKey:BlockedID" json:"-"`
}

func (Block) TableName() string {
	return "blocks"
}
