package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/noah-isme/reposition-api/migrations"
)

// Migrate runs a goose command (up, down, status, version, ...) against the embedded migrations.
func Migrate(db *sqlx.DB, command string, args ...string) error {
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Run(command, db.DB, ".", args...); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
