package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

// Up applies every registered migration.
func Up(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, ".")
}
