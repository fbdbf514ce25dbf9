// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/pm/internal/models"
)

// RecordCache implements secondary.RecordCache with SQLite.
type RecordCache struct {
	db  *sql.DB
	now func() time.Time
}

// NewRecordCache creates a new SQLite record cache.
func NewRecordCache(db *sql.DB) *RecordCache {
	return &RecordCache{db: db, now: time.Now}
}

// Replace swaps the stored collection for entity in a single transaction.
func (c *RecordCache) Replace(ctx context.Context, entity string, idField string, records []models.Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cached_records WHERE entity = ?", entity); err != nil {
		return fmt.Errorf("failed to clear cached %s: %w", entity, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO cached_records (entity, position, record_id, body) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare cache insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode cached %s: %w", entity, err)
		}
		if _, err := stmt.ExecContext(ctx, entity, i, models.Text(r[idField]), string(body)); err != nil {
			return fmt.Errorf("failed to cache %s: %w", entity, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cache_fetches (entity, record_count, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(entity) DO UPDATE SET record_count = excluded.record_count, fetched_at = excluded.fetched_at`,
		entity, len(records), c.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record fetch of %s: %w", entity, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cached %s: %w", entity, err)
	}
	return nil
}

// Load returns the stored collection for entity in server order.
func (c *RecordCache) Load(ctx context.Context, entity string) ([]models.Record, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT body FROM cached_records WHERE entity = ? ORDER BY position", entity)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached %s: %w", entity, err)
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan cached %s: %w", entity, err)
		}
		var r models.Record
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("failed to decode cached %s: %w", entity, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cached %s: %w", entity, err)
	}
	return records, nil
}

// FetchedAt returns when entity was last replaced, formatted RFC3339.
func (c *RecordCache) FetchedAt(ctx context.Context, entity string) (string, bool, error) {
	var at time.Time
	err := c.db.QueryRowContext(ctx, "SELECT fetched_at FROM cache_fetches WHERE entity = ?", entity).Scan(&at)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read fetch time of %s: %w", entity, err)
	}
	return at.Format(time.RFC3339), true, nil
}
