package database

import "crabber/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Crab{},
		&models.Follow{},
		&models.Block{},
		&models.Molt{},
		&models.Crabtag{},
		&models.CrabtagLink{},
		&models.MoltMention{},
		&models.Like{},
		&models.Bookmark{},
		&models.Notification{},
		&models.Trophy{},
		&models.TrophyCase{},
		&models.DeveloperKey{},
		&models.AccessToken{},
	}
}
