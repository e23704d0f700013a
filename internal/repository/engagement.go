package repository

import (
	"context"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LikeRepository defines the interface for like operations
type LikeRepository interface {
	Insert(ctx context.Context, crabID, moltID uint) (*models.Like, error)
	Delete(ctx context.Context, crabID, moltID uint) (bool, error)
	Exists(ctx context.Context, crabID, moltID uint) (bool, error)
	CountVisibleLikers(ctx context.Context, moltID uint) (int64, error)
}

type likeRepository struct {
	db *gorm.DB
}

// NewLikeRepository creates a new like repository
func NewLikeRepository(db *gorm.DB) LikeRepository {
	return &likeRepository{db: db}
}

// Insert returns the new like, or nil when the crab already liked the molt.
func (r *likeRepository) Insert(ctx context.Context, crabID, moltID uint) (*models.Like, error) {
	like := &models.Like{CrabID: crabID, MoltID: moltID}
	result := conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(like)
	if result.Error != nil {
		return nil, models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return like, nil
}

func (r *likeRepository) Delete(ctx context.Context, crabID, moltID uint) (bool, error) {
	result := conn(ctx, r.db).
		Where("crab_id = ? AND molt_id = ?", crabID, moltID).
		Delete(&models.Like{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *likeRepository) Exists(ctx context.Context, crabID, moltID uint) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Like{}).
		Where("crab_id = ? AND molt_id = ?", crabID, moltID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *likeRepository) CountVisibleLikers(ctx context.Context, moltID uint) (int64, error) {
	var count int64
	err := VisibleCrabs(conn(ctx, r.db).Model(&models.Like{}).
		Joins("JOIN crabs ON crabs.id = likes.crab_id")).
		Where("likes.molt_id = ?", moltID).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// BookmarkRepository defines the interface for bookmark operations
type BookmarkRepository interface {
	Insert(ctx context.Context, crabID, moltID uint) (*models.Bookmark, error)
	Delete(ctx context.Context, crabID, moltID uint) (bool, error)
	Exists(ctx context.Context, crabID, moltID uint) (bool, error)
	List(ctx context.Context, crabID uint, q models.PageQuery) ([]models.Molt, int64, error)
}

type bookmarkRepository struct {
	db *gorm.DB
}

// NewBookmarkRepository creates a new bookmark repository
func NewBookmarkRepository(db *gorm.DB) BookmarkRepository {
	return &bookmarkRepository{db: db}
}

func (r *bookmarkRepository) Insert(ctx context.Context, crabID, moltID uint) (*models.Bookmark, error) {
	bookmark := &models.Bookmark{CrabID: crabID, MoltID: moltID}
	result := conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(bookmark)
	if result.Error != nil {
		return nil, models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return bookmark, nil
}

func (r *bookmarkRepository) Delete(ctx context.Context, crabID, moltID uint) (bool, error) {
	result := conn(ctx, r.db).
		Where("crab_id = ? AND molt_id = ?", crabID, moltID).
		Delete(&models.Bookmark{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *bookmarkRepository) Exists(ctx context.Context, crabID, moltID uint) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Bookmark{}).
		Where("crab_id = ? AND molt_id = ?", crabID, moltID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// List returns the crab's bookmarked visible molts, newest molt first.
func (r *bookmarkRepository) List(ctx context.Context, crabID uint, q models.PageQuery) ([]models.Molt, int64, error) {
	db := conn(ctx, r.db)
	base := VisibleMolts(db.Model(&models.Molt{})).
		Where("molts.id IN (?)", db.Model(&models.Bookmark{}).Select("molt_id").Where("crab_id = ?", crabID))
	return pageMolts(db, base, q)
}
