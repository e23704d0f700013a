package repository

import (
	"context"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlockRepository stores block edges between crabs.
type BlockRepository interface {
	Insert(ctx context.Context, blockerID, blockedID uint) (bool, error)
	Delete(ctx context.Context, blockerID, blockedID uint) (bool, error)
	Exists(ctx context.Context, blockerID, blockedID uint) (bool, error)
	Between(ctx context.Context, aID, bID uint) (bool, error)
	Blocked(ctx context.Context, blockerID uint, q models.PageQuery) ([]models.Crab, int64, error)
}

type blockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

// Insert creates the edge and reports whether a new row was written.
func (r *blockRepository) Insert(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	result := conn(ctx, r.db).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Block{BlockerID: blockerID, BlockedID: blockedID})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes the edge and reports whether one existed.
func (r *blockRepository) Delete(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	result := conn(ctx, r.db).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&models.Block{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *blockRepository) Exists(ctx context.Context, blockerID, blockedID uint) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// Between reports whether either crab has blocked the other.
func (r *blockRepository) Between(ctx context.Context, aID, bID uint) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", aID, bID, bID, aID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// Blocked lists the visible crabs blockerID has blocked, oldest block first.
func (r *blockRepository) Blocked(ctx context.Context, blockerID uint, q models.PageQuery) ([]models.Crab, int64, error) {
	base := VisibleCrabs(conn(ctx, r.db).Model(&models.Crab{})).
		Joins("JOIN blocks ON blocks.blocked_id = crabs.id").
		Where("blocks.blocker_id = ?", blockerID).
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var crabs []models.Crab
	if err := withWindow(base.Order("blocks.id ASC"), q).Find(&crabs).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return crabs, total, nil
}
