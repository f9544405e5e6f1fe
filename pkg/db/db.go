package db

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/glebarez/sqlite"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database. driver is "sqlite" or
// "postgres"; dsn is a file path for sqlite and a lib/pq DSN for postgres.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch driver {
	case "sqlite":
		gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "open sqlite database %s", dsn)
		}
		return gdb, nil
	case "postgres":
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "open postgres connection")
		}
		if err := sqlDB.Ping(); err != nil {
			return nil, pkgerrors.Wrap(err, "ping postgres")
		}
		gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), cfg)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "open postgres database")
		}
		return gdb, nil
	default:
		return nil, pkgerrors.Errorf("unsupported database driver %q", driver)
	}
}

// AutoMigrate creates or updates all messaging tables.
func AutoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&User{},
		&Project{},
		&Conversation{},
		&ConversationParticipant{},
		&Message{},
		&MessageReaction{},
	)
}
