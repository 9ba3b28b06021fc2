package repository

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/pccr10001/groupcall/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		// Default to SQLite (pure Go)
		if dsn == "" {
			dsn = "groupcall.db"
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect database (%s): %w", driver, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Channel{},
		&model.ChannelAdmin{},
		&model.GroupCall{},
		&model.Webhook{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
