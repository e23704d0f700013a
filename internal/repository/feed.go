package repository

import (
	"context"
	"strings"
	"time"

	"crabber/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// visibleFollowerCountSQL counts visible followers of the crab in the outer query.
const visibleFollowerCountSQL = `(SELECT COUNT(*) FROM follows
	JOIN crabs AS followers ON followers.id = follows.follower_id
	WHERE follows.following_id = crabs.id AND followers.deleted = ? AND followers.banned = ?)`

// FeedRepository assembles read-only molt and crab listings.
type FeedRepository interface {
	Timeline(ctx context.Context, crabID uint, q models.PageQuery) ([]models.Molt, int64, error)
	PostsByAuthor(ctx context.Context, authorID uint, q models.PageQuery) ([]models.Molt, int64, error)
	RepliesByAuthor(ctx context.Context, authorID uint, q models.PageQuery) ([]models.Molt, int64, error)
	RepliesTo(ctx context.Context, moltID uint, q models.PageQuery) ([]models.Molt, int64, error)
	RemoltsOf(ctx context.Context, moltID uint, q models.PageQuery) ([]models.Molt, int64, error)
	QuotesOf(ctx context.Context, moltID uint, q models.PageQuery) ([]models.Molt, int64, error)
	PostsMentioning(ctx context.Context, username string, q models.PageQuery) ([]models.Molt, int64, error)
	PostsRepliedToAuthor(ctx context.Context, username string, q models.PageQuery) ([]models.Molt, int64, error)
	PostsWithTag(ctx context.Context, name string, q models.PageQuery) ([]models.Molt, int64, error)
	SearchPosts(ctx context.Context, text string, q models.PageQuery) ([]models.Molt, int64, error)
	SearchUsers(ctx context.Context, text string, q models.PageQuery) ([]models.Crab, int64, error)
	TrendingTags(ctx context.Context, since time.Time, limit int) ([]models.Ranked[models.Crabtag], error)
	MostLiked(ctx context.Context, q models.PageQuery) ([]models.Ranked[models.Molt], int64, error)
	MostReplied(ctx context.Context, q models.PageQuery) ([]models.Ranked[models.Molt], int64, error)
	MostPopularUsers(ctx context.Context, q models.PageQuery) ([]models.Ranked[models.Crab], int64, error)
	ReportedQueue(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error)
}

type feedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *gorm.DB) FeedRepository {
	return &feedRepository{db: db}
}

type rankRow struct {
	ID    uint
	Total int64
}

// likePattern builds a LIKE pattern matching text anywhere, with wildcards escaped.
func likePattern(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(text))
	return "%" + escaped + "%"
}

func (r *feedRepository) molts(ctx context.Context) (*gorm.DB, *gorm.DB) {
	db := conn(ctx, r.db)
	return db, VisibleMolts(db.Model(&models.Molt{}))
}

func (r *feedRepository) Timeline(ctx context.Context, crabID uint, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	following := db.Model(&models.Follow{}).Select("following_id").Where("follower_id = ?", crabID)
	base = base.
		Where("molts.kind <> ?", models.MoltKindReply).
		Where("molts.author_id = ? OR molts.author_id IN (?)", crabID, following)
	return pageMolts(db, base, q)
}

func (r *feedRepository) PostsByAuthor(ctx context.Context, authorID uint, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	return pageMolts(db, base.Where("molts.author_id = ?", authorID), q)
}

func (r *feedRepository) RepliesByAuthor(ctx context.Context, authorID uint, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	base = WithVisibleOriginal(base.Where("molts.author_id = ? AND molts.kind = ?", authorID, models.MoltKindReply))
	return pageMolts(db, base, q)
}

func (r *feedRepository) related(ctx context.Context, moltID uint, kind models.MoltKind, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	base = base.Where("molts.original_molt_id = ? AND molts.kind = ?", moltID, kind)
	return pageMolts(db, base, q)
}

func (r *feedRepository) RepliesTo(ctx context.Context, moltID uint, q models.PageQuery) ([]models.Molt, int64, error) {
	return r.related(ctx, moltID, models.MoltKindReply, q)
}

func (r *feedRepository) RemoltsOf(ctx context.Context, moltID uint, q models.PageQuery) ([]models.Molt, int64, error) {
	return r.related(ctx, moltID, models.MoltKindRemolt, q)
}

func (r *feedRepository) QuotesOf(ctx context.Context, moltID uint, q models.PageQuery) ([]models.Molt, int64, error) {
	return r.related(ctx, moltID, models.MoltKindQuote, q)
}

func (r *feedRepository) PostsMentioning(ctx context.Context, username string, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	mentioned := db.Model(&models.MoltMention{}).Select("molt_id").Where("username = ?", strings.ToLower(username))
	return pageMolts(db, base.Where("molts.id IN (?)", mentioned), q)
}

func (r *feedRepository) PostsRepliedToAuthor(ctx context.Context, username string, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	parents := VisibleMolts(db.Model(&models.Molt{})).
		Select("molts.id").
		Where("LOWER(authors.username) = ?", strings.ToLower(username))
	base = base.Where("molts.kind = ? AND molts.original_molt_id IN (?)", models.MoltKindReply, parents)
	return pageMolts(db, base, q)
}

func (r *feedRepository) PostsWithTag(ctx context.Context, name string, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	tagged := db.Model(&models.CrabtagLink{}).
		Select("crabtag_links.molt_id").
		Joins("JOIN crabtags ON crabtags.id = crabtag_links.tag_id").
		Where("crabtags.name = ?", strings.ToLower(name))
	return pageMolts(db, base.Where("molts.id IN (?)", tagged), q)
}

func (r *feedRepository) SearchPosts(ctx context.Context, text string, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	base = base.
		Where("molts.kind NOT IN ?", []models.MoltKind{models.MoltKindReply, models.MoltKindRemolt}).
		Where(`LOWER(molts.content) LIKE ? ESCAPE '\'`, likePattern(text))
	return pageMolts(db, base, q)
}

func (r *feedRepository) SearchUsers(ctx context.Context, text string, q models.PageQuery) ([]models.Crab, int64, error) {
	pattern := likePattern(text)
	base := VisibleCrabs(conn(ctx, r.db).Model(&models.Crab{})).
		Where(`LOWER(crabs.username) LIKE ? ESCAPE '\' OR LOWER(crabs.display_name) LIKE ? ESCAPE '\'`, pattern, pattern)
	base = NotBlockedCrabs(base, q.ViewerID).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var crabs []models.Crab
	err := withWindow(base.Order(clause.OrderBy{Expression: clause.Expr{
		SQL:                visibleFollowerCountSQL + " DESC, crabs.id ASC",
		Vars:               []interface{}{false, false},
		WithoutParentheses: true,
	}}), q).Find(&crabs).Error
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return crabs, total, nil
}

// TrendingTags ranks tags by uses in visible molts created after since.
func (r *feedRepository) TrendingTags(ctx context.Context, since time.Time, limit int) ([]models.Ranked[models.Crabtag], error) {
	db, base := r.molts(ctx)
	query := base.
		Joins("JOIN crabtag_links ON crabtag_links.molt_id = molts.id").
		Where("molts.created_at > ?", since.UTC()).
		Select("crabtag_links.tag_id AS id, COUNT(*) AS total").
		Group("crabtag_links.tag_id").
		Order("total DESC").
		Order("crabtag_links.tag_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []rankRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(rows) == 0 {
		return []models.Ranked[models.Crabtag]{}, nil
	}

	var tags []models.Crabtag
	if err := db.Where("id IN ?", rankIDs(rows)).Find(&tags).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	byID := make(map[uint]models.Crabtag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}
	ranked := make([]models.Ranked[models.Crabtag], 0, len(rows))
	for _, row := range rows {
		if tag, ok := byID[row.ID]; ok {
			ranked = append(ranked, models.Ranked[models.Crabtag]{Item: tag, Count: row.Total})
		}
	}
	return ranked, nil
}

func (r *feedRepository) MostLiked(ctx context.Context, q models.PageQuery) ([]models.Ranked[models.Molt], int64, error) {
	db, base := r.molts(ctx)
	agg := NotBlockedMolts(withCursor(base, q, "molts.created_at", "molts.id"), q.ViewerID).
		Joins("JOIN likes ON likes.molt_id = molts.id").
		Joins("JOIN crabs AS likers ON likers.id = likes.crab_id AND likers.deleted = ? AND likers.banned = ?", false, false).
		Select("molts.id AS id, COUNT(likes.id) AS total").
		Group("molts.id")
	return r.rankMolts(db, agg, q)
}

func (r *feedRepository) MostReplied(ctx context.Context, q models.PageQuery) ([]models.Ranked[models.Molt], int64, error) {
	db, base := r.molts(ctx)
	agg := NotBlockedMolts(withCursor(base, q, "molts.created_at", "molts.id"), q.ViewerID).
		Where("molts.kind IN ?", []models.MoltKind{models.MoltKindOriginal, models.MoltKindQuote}).
		Joins("JOIN molts AS replies ON replies.original_molt_id = molts.id AND replies.kind = ? AND replies.deleted = ?",
			models.MoltKindReply, false).
		Joins("JOIN crabs AS repliers ON repliers.id = replies.author_id AND repliers.deleted = ? AND repliers.banned = ?", false, false).
		Select("molts.id AS id, COUNT(DISTINCT replies.author_id) AS total").
		Group("molts.id")
	return r.rankMolts(db, agg, q)
}

func (r *feedRepository) rankMolts(db *gorm.DB, agg *gorm.DB, q models.PageQuery) ([]models.Ranked[models.Molt], int64, error) {
	rows, total, err := rank(db, agg, "molts.id", q)
	if err != nil {
		return nil, 0, err
	}
	molts, err := moltsByID(db, rankIDs(rows))
	if err != nil {
		return nil, 0, err
	}
	ranked := make([]models.Ranked[models.Molt], 0, len(rows))
	for _, row := range rows {
		if m, ok := molts[row.ID]; ok {
			ranked = append(ranked, models.Ranked[models.Molt]{Item: m, Count: row.Total})
		}
	}
	return ranked, total, nil
}

func (r *feedRepository) MostPopularUsers(ctx context.Context, q models.PageQuery) ([]models.Ranked[models.Crab], int64, error) {
	db := conn(ctx, r.db)
	agg := NotBlockedCrabs(VisibleCrabs(db.Model(&models.Crab{})), q.ViewerID).
		Joins("LEFT JOIN follows ON follows.following_id = crabs.id").
		Joins("LEFT JOIN crabs AS followers ON followers.id = follows.follower_id AND followers.deleted = ? AND followers.banned = ?", false, false).
		Select("crabs.id AS id, COUNT(followers.id) AS total").
		Group("crabs.id")

	rows, total, err := rank(db, agg, "crabs.id", q)
	if err != nil {
		return nil, 0, err
	}
	var crabs []models.Crab
	if len(rows) > 0 {
		if err := db.Where("id IN ?", rankIDs(rows)).Find(&crabs).Error; err != nil {
			return nil, 0, models.NewInternalError(err)
		}
	}
	byID := make(map[uint]models.Crab, len(crabs))
	for _, c := range crabs {
		byID[c.ID] = c
	}
	ranked := make([]models.Ranked[models.Crab], 0, len(rows))
	for _, row := range rows {
		if c, ok := byID[row.ID]; ok {
			ranked = append(ranked, models.Ranked[models.Crab]{Item: c, Count: row.Total})
		}
	}
	return ranked, total, nil
}

func (r *feedRepository) ReportedQueue(ctx context.Context, q models.PageQuery) ([]models.Molt, int64, error) {
	db, base := r.molts(ctx)
	base = withCursor(base.Where("molts.reports > ? AND molts.approved = ?", 0, false), q, "molts.created_at", "molts.id").
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var molts []models.Molt
	err := withWindow(base.Order("molts.reports DESC").Order("molts.created_at DESC").Order("molts.id DESC"), q).
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

// rank counts the grouped rows of agg and loads one window ordered by total
// descending, then idColumn ascending.
func rank(db *gorm.DB, agg *gorm.DB, idColumn string, q models.PageQuery) ([]rankRow, int64, error) {
	agg = agg.Session(&gorm.Session{})

	var total int64
	if err := db.Table("(?) AS ranked", agg).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var rows []rankRow
	if err := withWindow(agg.Order("total DESC").Order(idColumn+" ASC"), q).Scan(&rows).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return rows, total, nil
}

func rankIDs(rows []rankRow) []uint {
	ids := make([]uint, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids
}

// moltsByID loads molts with authors and originals, keyed by id.
func moltsByID(db *gorm.DB, ids []uint) (map[uint]models.Molt, error) {
	byID := make(map[uint]models.Molt, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	var molts []models.Molt
	if err := db.Preload("Author").Where("id IN ?", ids).Find(&molts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	if err := attachOriginals(db, molts); err != nil {
		return nil, err
	}
	for _, m := range molts {
		byID[m.ID] = m
	}
	return byID, nil
}
