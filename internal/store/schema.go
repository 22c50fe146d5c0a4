package store

import "database/sql"

// Schema is created on open; IF NOT EXISTS keeps restarts idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		room_type     TEXT NOT NULL DEFAULT 'open',
		required_nfts TEXT,
		created_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id            TEXT PRIMARY KEY,
		channel       TEXT NOT NULL,
		msg_type      TEXT NOT NULL,
		sender_wallet TEXT NOT NULL,
		target_wallet TEXT,
		content       TEXT NOT NULL,
		required_nfts TEXT,
		created_at    DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel_time
		ON messages (channel, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_target
		ON messages (target_wallet, created_at)`,
}

func ensureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
