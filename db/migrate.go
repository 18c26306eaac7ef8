package db

import (
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"audiovault/logger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// Migrate applies all pending schema migrations.
func Migrate(d *Database) error {
	sqlDB, err := d.Gorm.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(string(d.Dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect %s: %w", d.Dialect, err)
	}
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	version, err := goose.GetDBVersion(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("Database schema is up to date", logger.String("dialect", string(d.Dialect)), logger.Int64("version", version))
	return nil
}
