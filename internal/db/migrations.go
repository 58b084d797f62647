package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: candidate pool lookups filter on event and active flag.
	`CREATE INDEX IF NOT EXISTS idx_participants_event_active
	     ON participants(event_id, is_active)`,
	// Migration 2: idle sweeps scan by last activity.
	`CREATE INDEX IF NOT EXISTS idx_participants_last_active
	     ON participants(is_active, last_active_at)`,
	// Migration 3: message history is read per match in creation order.
	`CREATE INDEX IF NOT EXISTS idx_match_messages_match
	     ON match_messages(match_id, created_at)`,
}

// Migrate ensures the schema exists and runs the database migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
