package repository

import (
	"context"
	"strings"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrophyRepository defines the interface for trophy catalog and trophy case operations
type TrophyRepository interface {
	FindByTitle(ctx context.Context, title string) (*models.Trophy, error)
	Upsert(ctx context.Context, trophy *models.Trophy) (bool, error)
	InsertCase(ctx context.Context, crabID, trophyID uint) (*models.TrophyCase, error)
	HasTrophy(ctx context.Context, crabID uint, title string) (bool, error)
	ListCase(ctx context.Context, crabID uint) ([]models.TrophyCase, error)
}

type trophyRepository struct {
	db *gorm.DB
}

// NewTrophyRepository creates a new trophy repository
func NewTrophyRepository(db *gorm.DB) TrophyRepository {
	return &trophyRepository{db: db}
}

func (r *trophyRepository) FindByTitle(ctx context.Context, title string) (*models.Trophy, error) {
	var trophy models.Trophy
	err := conn(ctx, r.db).
		Where("LOWER(title) = ?", strings.ToLower(title)).
		First(&trophy).Error
	if err != nil {
		return nil, notFoundOr(err, "Trophy", title)
	}
	return &trophy, nil
}

// Upsert inserts an unknown trophy or refreshes the description and image of
// a known one. It reports whether anything changed.
func (r *trophyRepository) Upsert(ctx context.Context, trophy *models.Trophy) (bool, error) {
	existing, err := r.FindByTitle(ctx, trophy.Title)
	if err != nil && !models.IsCode(err, models.CodeNotFound) {
		return false, err
	}
	db := conn(ctx, r.db)
	if existing == nil {
		if err := db.Create(trophy).Error; err != nil {
			return false, models.NewInternalError(err)
		}
		return true, nil
	}

	trophy.ID = existing.ID
	if existing.Description == trophy.Description && existing.Image == trophy.Image {
		return false, nil
	}
	err = db.Model(&models.Trophy{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
		"description": trophy.Description,
		"image":       trophy.Image,
	}).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return true, nil
}

// InsertCase grants the trophy and returns nil when the crab already holds it.
func (r *trophyRepository) InsertCase(ctx context.Context, crabID, trophyID uint) (*models.TrophyCase, error) {
	tc := &models.TrophyCase{CrabID: crabID, TrophyID: trophyID}
	result := conn(ctx, r.db).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(tc)
	if result.Error != nil {
		return nil, models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return tc, nil
}

func (r *trophyRepository) HasTrophy(ctx context.Context, crabID uint, title string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.TrophyCase{}).
		Joins("JOIN trophies ON trophies.id = trophy_cases.trophy_id").
		Where("trophy_cases.crab_id = ? AND LOWER(trophies.title) = ?", crabID, strings.ToLower(title)).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *trophyRepository) ListCase(ctx context.Context, crabID uint) ([]models.TrophyCase, error) {
	var cases []models.TrophyCase
	err := conn(ctx, r.db).
		Preload("Trophy").
		Where("crab_id = ?", crabID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&cases).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return cases, nil
}
