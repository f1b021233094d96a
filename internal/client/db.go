// Package client implements the field agent's offline core: a durable local
// mirror of the inventory, a FIFO queue of mutation intents recorded while
// disconnected, and the reconciler that replays the queue against the server
// of record once connectivity returns.
package client

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// localSchema is the agent-side database layout: the item mirror, the
// mutation queue, and a small meta table (token, device id, last sync).
const localSchema = `
CREATE TABLE IF NOT EXISTS items (
    id            INTEGER PRIMARY KEY,
    tag_ref       TEXT NOT NULL,
    category      TEXT NOT NULL,
    status        TEXT NOT NULL,
    site_id       INTEGER,
    owner_user_id INTEGER NOT NULL DEFAULT 0,
    quantity      INTEGER NOT NULL DEFAULT 1,
    available     INTEGER NOT NULL DEFAULT 1,
    last_check    TEXT,
    updated_at    TEXT,
    is_local_only INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_queue (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    action      TEXT NOT NULL CHECK (action IN ('CREATE', 'UPDATE', 'DELETE')),
    entity_type TEXT NOT NULL,
    payload     TEXT NOT NULL,
    client_ts   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Open opens the agent's local SQLite database and ensures the schema.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening local database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating local schema: %w", err)
	}

	return db, nil
}
