package repository

import (
	"crabber/internal/models"

	"gorm.io/gorm"
)

// visibleOriginalSQL keeps remolts only while the molt they share is visible;
// a remolt has no content of its own to show.
const visibleOriginalSQL = `(molts.kind <> ? OR EXISTS (
	SELECT 1 FROM molts AS remolted
	JOIN crabs AS remolted_authors ON remolted_authors.id = remolted.author_id
	WHERE remolted.id = molts.original_molt_id
	AND remolted.deleted = ? AND remolted_authors.deleted = ? AND remolted_authors.banned = ?))`

// originalVisibleSQL requires the molt's original to be visible.
const originalVisibleSQL = `EXISTS (
	SELECT 1 FROM molts AS parents
	JOIN crabs AS parent_authors ON parent_authors.id = parents.author_id
	WHERE parents.id = molts.original_molt_id
	AND parents.deleted = ? AND parent_authors.deleted = ? AND parent_authors.banned = ?)`

// WithVisibleOriginal keeps only molts whose original is visible.
func WithVisibleOriginal(db *gorm.DB) *gorm.DB {
	return db.Where(originalVisibleSQL, false, false, false)
}

// VisibleCrabs restricts a crabs query to crabs that are neither deleted nor banned.
func VisibleCrabs(db *gorm.DB) *gorm.DB {
	return db.Where("crabs.deleted = ? AND crabs.banned = ?", false, false)
}

// VisibleMolts restricts a molts query to undeleted molts by visible
// authors. It joins the author as "authors".
func VisibleMolts(db *gorm.DB) *gorm.DB {
	return db.
		Joins("JOIN crabs AS authors ON authors.id = molts.author_id").
		Where("molts.deleted = ? AND authors.deleted = ? AND authors.banned = ?", false, false, false).
		Where(visibleOriginalSQL, models.MoltKindRemolt, false, false, false)
}

// blockedEitherWaySQL selects the crabs the viewer blocked and the crabs that
// blocked the viewer. It takes the viewer id twice.
const blockedEitherWaySQL = `(SELECT blocked_id FROM blocks WHERE blocker_id = ?
	UNION SELECT blocker_id FROM blocks WHERE blocked_id = ?)`

// NotBlockedCrabs drops crabs in a block with viewerID. A zero viewer is a no-op.
func NotBlockedCrabs(db *gorm.DB, viewerID uint) *gorm.DB {
	if viewerID == 0 {
		return db
	}
	return db.Where("crabs.id NOT IN "+blockedEitherWaySQL, viewerID, viewerID)
}

// NotBlockedMolts drops molts written by, or sharing a molt written by, a crab
// in a block with viewerID. A zero viewer is a no-op.
func NotBlockedMolts(db *gorm.DB, viewerID uint) *gorm.DB {
	if viewerID == 0 {
		return db
	}
	return db.
		Where("molts.author_id NOT IN "+blockedEitherWaySQL, viewerID, viewerID).
		Where(`(molts.original_molt_id IS NULL OR NOT EXISTS (
			SELECT 1 FROM molts AS blocked_originals
			WHERE blocked_originals.id = molts.original_molt_id
			AND blocked_originals.author_id IN `+blockedEitherWaySQL+`))`, viewerID, viewerID)
}

// withoutMutedWords drops molts containing any word viewerID muted, except the
// viewer's own. A zero viewer is a no-op.
func withoutMutedWords(root, db *gorm.DB, viewerID uint) (*gorm.DB, error) {
	if viewerID == 0 {
		return db, nil
	}
	var raw []string
	err := root.Session(&gorm.Session{NewDB: true}).Model(&models.Crab{}).
		Where("id = ?", viewerID).
		Pluck("muted_words", &raw).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if len(raw) == 0 {
		return db, nil
	}
	viewer := models.Crab{MutedWords: raw[0]}
	for _, word := range viewer.MutedWordList() {
		db = db.Where(`molts.author_id = ? OR LOWER(molts.content) NOT LIKE ? ESCAPE '\'`, viewerID, likePattern(word))
	}
	return db, nil
}

// withCursor applies the since/since-id cursor of q to table.
func withCursor(db *gorm.DB, q models.PageQuery, timeColumn, idColumn string) *gorm.DB {
	if q.Since != nil {
		db = db.Where(timeColumn+" > ?", q.Since.UTC())
	}
	if q.SinceID > 0 {
		db = db.Where(idColumn+" > ?", q.SinceID)
	}
	return db
}

// withWindow applies limit and offset; a non-positive limit means all rows.
func withWindow(db *gorm.DB, q models.PageQuery) *gorm.DB {
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	return db
}
