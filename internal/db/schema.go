package db

import "database/sql"

// SchemaSQL is the complete schema of the local record cache after all
// migrations. Tests load it through GetSchemaSQL instead of declaring tables.
const SchemaSQL = `
-- One row per cached record, in the order the server returned them
CREATE TABLE IF NOT EXISTS cached_records (
	entity TEXT NOT NULL,
	position INTEGER NOT NULL,
	record_id TEXT NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (entity, position)
);

CREATE INDEX IF NOT EXISTS idx_cached_records_id ON cached_records(entity, record_id);

-- Last successful list per entity
CREATE TABLE IF NOT EXISTS cache_fetches (
	entity TEXT PRIMARY KEY,
	record_count INTEGER NOT NULL,
	fetched_at DATETIME NOT NULL
);
`

// InitSchema creates the schema on a fresh database and runs pending
// migrations on an existing one.
func InitSchema(conn *sql.DB) error {
	var tableCount int
	err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}
	if tableCount > 0 {
		return RunMigrations(conn)
	}

	// Fresh install: create the modern schema and mark every migration applied
	if _, err := conn.Exec(SchemaSQL); err != nil {
		return err
	}
	if err := createVersionTable(conn); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := conn.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return err
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
func GetSchemaSQL() string {
	return SchemaSQL
}
