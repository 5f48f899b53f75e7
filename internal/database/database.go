// Package database opens the SQLite store shared by the queue, run state,
// settings and reference catalog, and applies embedded migrations.
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Open opens the database at path and migrates it to the latest version
func Open(path string, logger *zap.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; one connection keeps claim CAS updates ordered.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Migrate applies all pending up migrations
func Migrate(db *sqlx.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrationLogger{logger: logger.Sugar()}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("no new migrations to apply")
		return nil
	}
	if err != nil {
		return err
	}

	version, dirty, _ := m.Version()
	logger.Info("applied database migrations", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

type migrationLogger struct {
	logger *zap.SugaredLogger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.logger.Debugf(format, v...)
}

func (l migrationLogger) Verbose() bool {
	return false
}
