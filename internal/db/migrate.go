package db

import (
	"database/sql"
	"embed"
	"sync"

	"github.com/pressly/goose/v3"

	apperrors "github.com/kimhsiao/glimm/backend/internal/errors"
	"github.com/kimhsiao/glimm/backend/internal/logging"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// goose keeps its base FS, dialect and logger in package state.
var migrateMu sync.Mutex

// Migrate applies all pending schema migrations.
func Migrate(db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(logging.NewGooseLogger(nil))

	if err := goose.SetDialect("sqlite3"); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to set goose dialect", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to apply migrations", err)
	}

	return nil
}

// CurrentVersion returns the applied schema version.
func CurrentVersion(db *sql.DB) (int64, error) {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}
