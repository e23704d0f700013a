package models

import (
	"time"
)

// DefaultTrophyImage is used by catalog entries without their own icon.
const DefaultTrophyImage = "https://cdn.crabber.net/trophies/default_trophy.png"

// Trophy is a catalog entry describing an achievement.
type Trophy struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:128;not null;uniqueIndex" json:"title" yaml:"title"`
	Description string `gorm:"size:256;not null" json:"description" yaml:"description"`
	Image       string `gorm:"size:512;not null" json:"image" yaml:"image"`
}

// TableName specifies the table name for GORM
func (Trophy) TableName() string {
	return "trophies"
}

// TrophyCase records a crab holding a trophy.
type TrophyCase struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CrabID    uint      `gorm:"not null;uniqueIndex:idx_trophy_case_owner" json:"crab_id"`
	TrophyID  uint      `gorm:"not null;uniqueIndex:idx_trophy_case_owner" json:"trophy_id"`
	Trophy    Trophy    `gorm:"foreignKey:TrophyID" json:"trophy"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (TrophyCase) TableName() string {
	return "trophy_cases"
}
