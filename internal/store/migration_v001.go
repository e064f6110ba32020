package store

import "database/sql"

// migrateV001 creates the initial clipstash schema. data_hash is indexed but
// deliberately not UNIQUE-constrained: uniqueness is enforced by the
// lookup-before-insert pattern under the gateway lock, because the hash is
// computed by the caller.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			type              TEXT NOT NULL,
			data              BLOB NOT NULL,
			data_hash         TEXT NOT NULL,
			timestamp         TEXT NOT NULL,
			name              TEXT NOT NULL DEFAULT '',
			thumbnail         BLOB,
			format_type       TEXT NOT NULL DEFAULT '',
			formatted_content TEXT NOT NULL DEFAULT '',
			is_secret         BOOLEAN NOT NULL DEFAULT 0,
			is_favorite       BOOLEAN NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS tags (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			color       TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS item_tags (
			item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (item_id, tag_id)
		)`,

		`CREATE TABLE IF NOT EXISTS paste_history (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			item_id          INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			pasted_timestamp TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_items_hash      ON items(data_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_items_timestamp ON items(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_items_type      ON items(type)`,
		`CREATE INDEX IF NOT EXISTS idx_items_favorite  ON items(is_favorite)`,
		`CREATE INDEX IF NOT EXISTS idx_paste_item      ON paste_history(item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_paste_ts        ON paste_history(pasted_timestamp DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
