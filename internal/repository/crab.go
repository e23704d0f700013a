package repository

import (
	"context"
	"strings"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CrabRepository defines the interface for crab data operations
type CrabRepository interface {
	Create(ctx context.Context, crab *models.Crab) error
	GetByID(ctx context.Context, id uint) (*models.Crab, error)
	GetByIDIncludingInvisible(ctx context.Context, id uint) (*models.Crab, error)
	GetByUsername(ctx context.Context, username string) (*models.Crab, error)
	GetByUsernameIncludingInvisible(ctx context.Context, username string) (*models.Crab, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	VisibleUsernames(ctx context.Context, usernames []string) (map[string]uint, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	EachVisibleBatch(ctx context.Context, size int, fn func(crabs []models.Crab) error) error
}

// crabRepository implements CrabRepository
type crabRepository struct {
	db *gorm.DB
}

// NewCrabRepository creates a new crab repository
func NewCrabRepository(db *gorm.DB) CrabRepository {
	return &crabRepository{db: db}
}

func (r *crabRepository) Create(ctx context.Context, crab *models.Crab) error {
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(crab).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewValidationError("Username or email already taken")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *crabRepository) GetByID(ctx context.Context, id uint) (*models.Crab, error) {
	var crab models.Crab
	if err := VisibleCrabs(conn(ctx, r.db)).First(&crab, id).Error; err != nil {
		return nil, notFoundOr(err, "Crab", id)
	}
	return &crab, nil
}

func (r *crabRepository) GetByIDIncludingInvisible(ctx context.Context, id uint) (*models.Crab, error) {
	var crab models.Crab
	if err := conn(ctx, r.db).First(&crab, id).Error; err != nil {
		return nil, notFoundOr(err, "Crab", id)
	}
	return &crab, nil
}

func (r *crabRepository) GetByUsername(ctx context.Context, username string) (*models.Crab, error) {
	var crab models.Crab
	err := VisibleCrabs(conn(ctx, r.db)).
		Where("LOWER(crabs.username) = ?", strings.ToLower(username)).
		First(&crab).Error
	if err != nil {
		return nil, notFoundOr(err, "Crab", username)
	}
	return &crab, nil
}

// GetByUsernameIncludingInvisible prefers the live account over deleted ones
// that once held the same username.
func (r *crabRepository) GetByUsernameIncludingInvisible(ctx context.Context, username string) (*models.Crab, error) {
	var crab models.Crab
	err := conn(ctx, r.db).
		Where("LOWER(crabs.username) = ?", strings.ToLower(username)).
		Order("crabs.deleted ASC").
		Order("crabs.id DESC").
		First(&crab).Error
	if err != nil {
		return nil, notFoundOr(err, "Crab", username)
	}
	return &crab, nil
}

func (r *crabRepository) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Crab{}).
		Where("LOWER(username) = ? AND deleted = ?", strings.ToLower(username), false).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *crabRepository) EmailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Crab{}).
		Where("LOWER(email) = ? AND deleted = ?", strings.ToLower(email), false).
		Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// VisibleUsernames maps each lowercase username that belongs to a visible crab to its id.
func (r *crabRepository) VisibleUsernames(ctx context.Context, usernames []string) (map[string]uint, error) {
	found := make(map[string]uint, len(usernames))
	if len(usernames) == 0 {
		return found, nil
	}
	lowered := make([]string, len(usernames))
	for i, u := range usernames {
		lowered[i] = strings.ToLower(u)
	}

	var crabs []models.Crab
	err := VisibleCrabs(conn(ctx, r.db)).
		Select("id", "username").
		Where("LOWER(crabs.username) IN ?", lowered).
		Find(&crabs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, c := range crabs {
		found[strings.ToLower(c.Username)] = c.ID
	}
	return found, nil
}

func (r *crabRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	result := conn(ctx, r.db).Model(&models.Crab{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return models.NewValidationError("Username or email already taken")
		}
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Crab", id)
	}
	return nil
}

func (r *crabRepository) EachVisibleBatch(ctx context.Context, size int, fn func(crabs []models.Crab) error) error {
	var batch []models.Crab
	result := VisibleCrabs(conn(ctx, r.db)).FindInBatches(&batch, size, func(_ *gorm.DB, _ int) error {
		return fn(batch)
	})
	return internal(result.Error)
}
