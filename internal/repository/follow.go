package repository

import (
	"context"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository defines the interface for follow edge operations
type FollowRepository interface {
	Insert(ctx context.Context, followerID, followingID uint) (bool, error)
	Delete(ctx context.Context, followerID, followingID uint) (bool, error)
	Exists(ctx context.Context, followerID, followingID uint) (bool, error)
	FollowerCount(ctx context.Context, crabID uint) (int64, error)
	FollowingCount(ctx context.Context, crabID uint) (int64, error)
	Following(ctx context.Context, crabID uint, q models.PageQuery) ([]models.Crab, int64, error)
	Followers(ctx context.Context, crabID uint, q models.PageQuery) ([]models.Crab, int64, error)
	FollowingIDs(ctx context.Context, crabID uint) ([]uint, error)
	Mutual(ctx context.Context, aID, bID uint) ([]models.Crab, error)
	Recommended(ctx context.Context, crabID uint, limit int) ([]models.Crab, error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

// Insert creates the edge and reports whether a new row was written.
func (r *followRepository) Insert(ctx context.Context, followerID, followingID uint) (bool, error) {
	follow := &models.Follow{FollowerID: followerID, FollowingID: followingID}
	result := conn(ctx, r.db).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(follow)
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Delete removes the edge and reports whether one existed.
func (r *followRepository) Delete(ctx context.Context, followerID, followingID uint) (bool, error) {
	result := conn(ctx, r.db).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&models.Follow{})
	if result.Error != nil {
		return false, models.NewInternalError(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followingID uint) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// followingQuery selects the visible crabs crabID follows, in edge order.
func (r *followRepository) followingQuery(ctx context.Context, crabID uint) *gorm.DB {
	return VisibleCrabs(conn(ctx, r.db).Model(&models.Crab{})).
		Joins("JOIN follows ON follows.following_id = crabs.id").
		Where("follows.follower_id = ?", crabID)
}

// followersQuery selects the visible crabs following crabID, in edge order.
func (r *followRepository) followersQuery(ctx context.Context, crabID uint) *gorm.DB {
	return VisibleCrabs(conn(ctx, r.db).Model(&models.Crab{})).
		Joins("JOIN follows ON follows.follower_id = crabs.id").
		Where("follows.following_id = ?", crabID)
}

func (r *followRepository) FollowerCount(ctx context.Context, crabID uint) (int64, error) {
	var count int64
	if err := r.followersQuery(ctx, crabID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *followRepository) FollowingCount(ctx context.Context, crabID uint) (int64, error) {
	var count int64
	if err := r.followingQuery(ctx, crabID).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *followRepository) Following(ctx context.Context, crabID uint, q models.PageQuery) ([]models.Crab, int64, error) {
	return r.page(r.followingQuery(ctx, crabID), q)
}

func (r *followRepository) Followers(ctx context.Context, crabID uint, q models.PageQuery) ([]models.Crab, int64, error) {
	return r.page(r.followersQuery(ctx, crabID), q)
}

func (r *followRepository) page(base *gorm.DB, q models.PageQuery) ([]models.Crab, int64, error) {
	base = NotBlockedCrabs(withCursor(base, q, "crabs.register_time", "crabs.id"), q.ViewerID).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var crabs []models.Crab
	if err := withWindow(base.Order("follows.id ASC"), q).Find(&crabs).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return crabs, total, nil
}

func (r *followRepository) FollowingIDs(ctx context.Context, crabID uint) ([]uint, error) {
	var ids []uint
	err := r.followingQuery(ctx, crabID).Order("follows.id ASC").Pluck("crabs.id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// Mutual returns the visible crabs that aID follows and that also follow bID.
func (r *followRepository) Mutual(ctx context.Context, aID, bID uint) ([]models.Crab, error) {
	db := conn(ctx, r.db)
	var crabs []models.Crab
	err := VisibleCrabs(db).
		Where("crabs.id IN (?)", db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", aID)).
		Where("crabs.id IN (?)", db.Model(&models.Follow{}).Select("follower_id").Where("following_id = ?", bID)).
		Order("crabs.id ASC").
		Find(&crabs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return crabs, nil
}

// Recommended returns crabs followed by the crabs crabID follows, excluding
// crabID, everyone it already follows and anyone in a block with it.
func (r *followRepository) Recommended(ctx context.Context, crabID uint, limit int) ([]models.Crab, error) {
	db := conn(ctx, r.db)
	direct := db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", crabID)
	visibleDirect := VisibleCrabs(db.Model(&models.Crab{})).Select("crabs.id").Where("crabs.id IN (?)", direct)
	secondHop := db.Model(&models.Follow{}).Select("following_id").Where("follower_id IN (?)", visibleDirect)

	query := NotBlockedCrabs(VisibleCrabs(db), crabID).
		Where("crabs.id IN (?)", secondHop).
		Where("crabs.id <> ?", crabID).
		Where("crabs.id NOT IN (?)", direct).
		Order("crabs.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var crabs []models.Crab
	if err := query.Find(&crabs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return crabs, nil
}
