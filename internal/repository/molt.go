package repository

import (
	"context"
	"errors"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MoltRepository defines the interface for molt data operations
type MoltRepository interface {
	Create(ctx context.Context, molt *models.Molt) error
	GetByID(ctx context.Context, id uint) (*models.Molt, error)
	GetByIDIncludingInvisible(ctx context.Context, id uint) (*models.Molt, error)
	UpdateContent(ctx context.Context, id uint, content string) error
	SetDeleted(ctx context.Context, id uint, deleted bool) error
	SetApproved(ctx context.Context, id uint, approved bool) error
	IncrementReports(ctx context.Context, id uint) error
	ReplaceTags(ctx context.Context, moltID uint, names []string) error
	ReplaceMentions(ctx context.Context, moltID uint, usernames []string) error
	Tags(ctx context.Context, moltID uint) ([]string, error)
	Mentions(ctx context.Context, moltID uint) ([]string, error)
	FindLiveRemolt(ctx context.Context, authorID, originalID uint) (*models.Molt, error)
	CountByAuthor(ctx context.Context, authorID uint) (int64, error)
}

type moltRepository struct {
	db *gorm.DB
}

// NewMoltRepository creates a new molt repository
func NewMoltRepository(db *gorm.DB) MoltRepository {
	return &moltRepository{db: db}
}

func (r *moltRepository) Create(ctx context.Context, molt *models.Molt) error {
	if err := conn(ctx, r.db).Omit(clause.Associations).Create(molt).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *moltRepository) GetByID(ctx context.Context, id uint) (*models.Molt, error) {
	db := conn(ctx, r.db)
	var molt models.Molt
	err := VisibleMolts(db.Model(&models.Molt{})).
		Preload("Author").
		First(&molt, id).Error
	if err != nil {
		return nil, notFoundOr(err, "Molt", id)
	}
	molts := []models.Molt{molt}
	if err := attachOriginals(db, molts); err != nil {
		return nil, err
	}
	return &molts[0], nil
}

func (r *moltRepository) GetByIDIncludingInvisible(ctx context.Context, id uint) (*models.Molt, error) {
	var molt models.Molt
	if err := conn(ctx, r.db).Preload("Author").First(&molt, id).Error; err != nil {
		return nil, notFoundOr(err, "Molt", id)
	}
	return &molt, nil
}

func (r *moltRepository) UpdateContent(ctx context.Context, id uint, content string) error {
	return r.update(ctx, id, map[string]interface{}{"content": content, "edited": true})
}

func (r *moltRepository) SetDeleted(ctx context.Context, id uint, deleted bool) error {
	return r.update(ctx, id, map[string]interface{}{"deleted": deleted})
}

func (r *moltRepository) SetApproved(ctx context.Context, id uint, approved bool) error {
	return r.update(ctx, id, map[string]interface{}{"approved": approved})
}

// IncrementReports bumps the counter in SQL so concurrent reports all land.
func (r *moltRepository) IncrementReports(ctx context.Context, id uint) error {
	return r.update(ctx, id, map[string]interface{}{"reports": gorm.Expr("reports + ?", 1)})
}

func (r *moltRepository) update(ctx context.Context, id uint, fields map[string]interface{}) error {
	result := conn(ctx, r.db).Model(&models.Molt{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Molt", id)
	}
	return nil
}

// ReplaceTags makes names the molt's complete tag set, creating missing tags.
func (r *moltRepository) ReplaceTags(ctx context.Context, moltID uint, names []string) error {
	db := conn(ctx, r.db)
	if err := db.Where("molt_id = ?", moltID).Delete(&models.CrabtagLink{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	if len(names) == 0 {
		return nil
	}

	fresh := make([]models.Crabtag, len(names))
	for i, name := range names {
		fresh[i] = models.Crabtag{Name: name}
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
		return models.NewInternalError(err)
	}

	// Ids of pre-existing tags are not returned by the insert above.
	var tags []models.Crabtag
	if err := db.Where("name IN ?", names).Find(&tags).Error; err != nil {
		return models.NewInternalError(err)
	}
	links := make([]models.CrabtagLink, len(tags))
	for i, tag := range tags {
		links[i] = models.CrabtagLink{MoltID: moltID, TagID: tag.ID}
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ReplaceMentions makes usernames the molt's complete mention set.
func (r *moltRepository) ReplaceMentions(ctx context.Context, moltID uint, usernames []string) error {
	db := conn(ctx, r.db)
	if err := db.Where("molt_id = ?", moltID).Delete(&models.MoltMention{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	if len(usernames) == 0 {
		return nil
	}
	mentions := make([]models.MoltMention, len(usernames))
	for i, u := range usernames {
		mentions[i] = models.MoltMention{MoltID: moltID, Username: u}
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&mentions).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *moltRepository) Tags(ctx context.Context, moltID uint) ([]string, error) {
	var names []string
	err := conn(ctx, r.db).Model(&models.Crabtag{}).
		Joins("JOIN crabtag_links ON crabtag_links.tag_id = crabtags.id").
		Where("crabtag_links.molt_id = ?", moltID).
		Order("crabtags.name ASC").
		Pluck("crabtags.name", &names).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return names, nil
}

func (r *moltRepository) Mentions(ctx context.Context, moltID uint) ([]string, error) {
	var usernames []string
	err := conn(ctx, r.db).Model(&models.MoltMention{}).
		Where("molt_id = ?", moltID).
		Order("username ASC").
		Pluck("username", &usernames).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return usernames, nil
}

// FindLiveRemolt returns the author's undeleted remolt of originalID, or nil.
func (r *moltRepository) FindLiveRemolt(ctx context.Context, authorID, originalID uint) (*models.Molt, error) {
	var molt models.Molt
	err := conn(ctx, r.db).
		Where("author_id = ? AND original_molt_id = ? AND kind = ? AND deleted = ?",
			authorID, originalID, models.MoltKindRemolt, false).
		First(&molt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &molt, nil
}

// CountByAuthor counts the author's undeleted molts of every kind.
func (r *moltRepository) CountByAuthor(ctx context.Context, authorID uint) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.Molt{}).
		Where("author_id = ? AND deleted = ?", authorID, false).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// attachOriginals fills OriginalMolt on each molt whose original is visible.
func attachOriginals(db *gorm.DB, molts []models.Molt) error {
	ids := make([]uint, 0, len(molts))
	for _, m := range molts {
		if m.OriginalMoltID != nil {
			ids = append(ids, *m.OriginalMoltID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	var originals []models.Molt
	err := VisibleMolts(db.Model(&models.Molt{})).
		Preload("Author").
		Where("molts.id IN ?", ids).
		Find(&originals).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	byID := make(map[uint]*models.Molt, len(originals))
	for i := range originals {
		byID[originals[i].ID] = &originals[i]
	}
	for i := range molts {
		if molts[i].OriginalMoltID != nil {
			molts[i].OriginalMolt = byID[*molts[i].OriginalMoltID]
		}
	}
	return nil
}

// pageMolts counts base, then loads the newest window of it.
func pageMolts(db *gorm.DB, base *gorm.DB, q models.PageQuery) ([]models.Molt, int64, error) {
	base, err := withoutMutedWords(db, NotBlockedMolts(withCursor(base, q, "molts.created_at", "molts.id"), q.ViewerID), q.ViewerID)
	if err != nil {
		return nil, 0, err
	}
	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var molts []models.Molt
	err = withWindow(base.Order("molts.created_at DESC").Order("molts.id DESC"), q).
		Preload("Author").
		Find(&molts).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	if err := attachOriginals(db, molts); err != nil {
		return nil, 0, err
	}
	return molts, total, nil
}
