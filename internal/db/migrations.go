package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// migrations is a list of SQL statements applied in order after schema
// creation. Each migration must be idempotent. Append new migrations at the
// end.
var migrations = []string{
	// Migration 1: correlate audit rows with the drain attempt that produced
	// them. Older databases predate the batch_id column.
	`ALTER TABLE sync_events ADD COLUMN batch_id TEXT`,
}

// Migrate creates the schema and runs pending migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			// sqlite has no ADD COLUMN IF NOT EXISTS; a duplicate column
			// error means the migration already ran.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
