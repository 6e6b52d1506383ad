package database

import (
	"fmt"

	"chatio/config"
	"chatio/internal/domain"
	"chatio/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql", "":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MasterUserRole{},
		&models.MasterUserGender{},
		&models.MasterConversationType{},
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
	)
}

// SeedMasterData inserts roles, genders and conversation types that are missing.
// Existing rows keep their IDs.
func SeedMasterData(db *gorm.DB) error {
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}
	for _, name := range domain.UserRoles {
		if err := db.Clauses(onConflict).Create(&models.MasterUserRole{Name: name}).Error; err != nil {
			return fmt.Errorf("seed user role %s: %w", name, err)
		}
	}
	for _, name := range domain.UserGenders {
		if err := db.Clauses(onConflict).Create(&models.MasterUserGender{Name: name}).Error; err != nil {
			return fmt.Errorf("seed user gender %s: %w", name, err)
		}
	}
	for _, name := range domain.ConversationTypes {
		if err := db.Clauses(onConflict).Create(&models.MasterConversationType{Name: name}).Error; err != nil {
			return fmt.Errorf("seed conversation type %s: %w", name, err)
		}
	}
	return nil
}
