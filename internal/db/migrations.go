package db

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/pm/internal/logging"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_cached_records",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_cache_fetches",
		Up:      migrationV2,
	},
}

func createVersionTable(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// RunMigrations executes all pending migrations
func RunMigrations(conn *sql.DB) error {
	if err := createVersionTable(conn); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var currentVersion int
	err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logging.L().Info("running cache migration",
			zap.Int("version", migration.Version), zap.String("name", migration.Name))

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}
		if err := migration.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// migrationV1 creates the record mirror: one row per record, keyed by its
// position in the last list response.
func migrationV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS cached_records (
			entity TEXT NOT NULL,
			position INTEGER NOT NULL,
			record_id TEXT NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (entity, position)
		);
		CREATE INDEX IF NOT EXISTS idx_cached_records_id ON cached_records(entity, record_id);
	`)
	return err
}

// migrationV2 adds per-entity fetch bookkeeping.
func migrationV2(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS cache_fetches (
			entity TEXT PRIMARY KEY,
			record_count INTEGER NOT NULL,
			fetched_at DATETIME NOT NULL
		)
	`)
	return err
}
