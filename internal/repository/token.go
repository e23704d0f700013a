package repository

import (
	"context"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository defines the interface for developer key and access token operations
type TokenRepository interface {
	CreateDeveloperKey(ctx context.Context, key *models.DeveloperKey) error
	CreateAccessToken(ctx context.Context, token *models.AccessToken) error
	CountLiveDeveloperKeys(ctx context.Context, crabID uint) (int64, error)
	CountLiveAccessTokens(ctx context.Context, crabID uint) (int64, error)
	FindDeveloperKey(ctx context.Context, key string) (*models.DeveloperKey, error)
	FindAccessToken(ctx context.Context, key string) (*models.AccessToken, error)
	RevokeDeveloperKey(ctx context.Context, crabID uint, key string) error
	RevokeAccessToken(ctx context.Context, crabID uint, key string) error
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) CreateDeveloperKey(ctx context.Context, key *models.DeveloperKey) error {
	return r.create(ctx, key)
}

func (r *tokenRepository) CreateAccessToken(ctx context.Context, token *models.AccessToken) error {
	return r.create(ctx, token)
}

func (r *tokenRepository) create(ctx context.Context, value interface{}) error {
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(value).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("Key already exists", err)
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tokenRepository) CountLiveDeveloperKeys(ctx context.Context, crabID uint) (int64, error) {
	return r.countLive(ctx, &models.DeveloperKey{}, crabID)
}

func (r *tokenRepository) CountLiveAccessTokens(ctx context.Context, crabID uint) (int64, error) {
	return r.countLive(ctx, &models.AccessToken{}, crabID)
}

func (r *tokenRepository) countLive(ctx context.Context, model interface{}, crabID uint) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(model).
		Where("crab_id = ? AND deleted = ?", crabID, false).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// FindDeveloperKey returns a live key, with its crab loaded.
func (r *tokenRepository) FindDeveloperKey(ctx context.Context, key string) (*models.DeveloperKey, error) {
	var dk models.DeveloperKey
	err := conn(ctx, r.db).Preload("Crab").
		Where("key = ? AND deleted = ?", key, false).
		First(&dk).Error
	if err != nil {
		return nil, notFoundOr(err, "Developer key", "(redacted)")
	}
	return &dk, nil
}

// FindAccessToken returns a live token, with its crab loaded.
func (r *tokenRepository) FindAccessToken(ctx context.Context, key string) (*models.AccessToken, error) {
	var at models.AccessToken
	err := conn(ctx, r.db).Preload("Crab").
		Where("key = ? AND deleted = ?", key, false).
		First(&at).Error
	if err != nil {
		return nil, notFoundOr(err, "Access token", "(redacted)")
	}
	return &at, nil
}

func (r *tokenRepository) RevokeDeveloperKey(ctx context.Context, crabID uint, key string) error {
	return r.revoke(ctx, &models.DeveloperKey{}, "Developer key", crabID, key)
}

func (r *tokenRepository) RevokeAccessToken(ctx context.Context, crabID uint, key string) error {
	return r.revoke(ctx, &models.AccessToken{}, "Access token", crabID, key)
}

// revoke soft-deletes a key owned by crabID. Revoking twice is not an error.
func (r *tokenRepository) revoke(ctx context.Context, model interface{}, resource string, crabID uint, key string) error {
	result := conn(ctx, r.db).Model(model).
		Where("crab_id = ? AND key = ?", crabID, key).
		Update("deleted", true)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError(resource, "(redacted)")
	}
	return nil
}
