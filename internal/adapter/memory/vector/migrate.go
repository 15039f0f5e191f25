package vector

import "database/sql"

// migrate creates the schema if it doesn't exist.
func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS chunks (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			embedding  BLOB,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS chunks_user_idx ON chunks(user_id);
		CREATE INDEX IF NOT EXISTS chunks_source_idx ON chunks(user_id, source);
	`
	_, err := db.Exec(schema)
	return err
}
