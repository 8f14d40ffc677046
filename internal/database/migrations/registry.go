package migrations

import (
	"gorm.io/gorm"

	"github.com/alchemist-av/alchemist/internal/models"
)

// AllMigrations returns all registered migrations in order.
//   - 001: Schema creation using GORM AutoMigrate
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Job{},
				&models.Decision{},
				&models.EncodeStat{},
				&models.Settings{},
				&models.ScheduleWindow{},
				&models.WatchDir{},
				&models.NotificationTarget{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"notification_targets",
				"watch_dirs",
				"schedule_windows",
				"settings",
				"encode_stats",
				"decisions",
				"jobs",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}
