package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the schema version recorded in the meta table.
const SchemaVersion = "1"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: lookup by tag needs (tag_id, item_id) for the
	// intersection GROUP BY. Older databases only had the primary key.
	if err := s.migrateTaggingTagIndex(); err != nil {
		return fmt.Errorf("migrating tagging index: %w", err)
	}

	return nil
}

func (s *SQLStore) bootstrapStatements() []string {
	if s.dialect == DialectPostgres {
		return []string{
			`CREATE TABLE IF NOT EXISTS items (
				id         BIGSERIAL PRIMARY KEY,
				kind       TEXT NOT NULL CHECK(kind IN ('document','asset')),
				subtype    TEXT NOT NULL,
				title      TEXT NOT NULL DEFAULT '',
				parent_id  BIGINT REFERENCES items(id) ON DELETE SET NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_items_subtype ON items(subtype)`,
			`CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id)`,
			`CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at)`,
			`CREATE TABLE IF NOT EXISTS tags (
				id         BIGSERIAL PRIMARY KEY,
				title      TEXT NOT NULL,
				slug       TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE TABLE IF NOT EXISTS taggings (
				item_id    BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
				tag_id     BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (item_id, tag_id)
			)`,
			`CREATE TABLE IF NOT EXISTS meta (
				key   TEXT PRIMARY KEY,
				value TEXT
			)`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS items (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			kind       TEXT NOT NULL CHECK(kind IN ('document','asset')),
			subtype    TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			parent_id  INTEGER REFERENCES items(id) ON DELETE SET NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_subtype ON items(subtype)`,
		`CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at)`,
		`CREATE TABLE IF NOT EXISTS tags (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			title      TEXT NOT NULL,
			slug       TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS taggings (
			item_id    INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
			tag_id     INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (item_id, tag_id)
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT
		)`,
	}
}

func (s *SQLStore) runBootstrapDDL() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range s.bootstrapStatements() {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration %q: %w", truncate(stmt, 80), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

func (s *SQLStore) seedMeta() error {
	seeds := map[string]string{
		"schema_version": SchemaVersion,
		"dialect":        string(s.dialect),
	}
	for k, v := range seeds {
		_, err := s.db.Exec(s.dialect.Rebind(
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`), k, v)
		if err != nil {
			return fmt.Errorf("seeding %s: %w", k, err)
		}
	}
	return nil
}

func (s *SQLStore) metaTableExists() (bool, error) {
	var query string
	if s.dialect == DialectPostgres {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'meta'`
	} else {
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`
	}
	var exists int
	if err := s.db.QueryRow(query).Scan(&exists); err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (s *SQLStore) isMetaFlagEnabled(key string) (bool, error) {
	exists, err := s.metaTableExists()
	if err != nil || !exists {
		return false, err
	}

	value, err := s.getMetaValue(key)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *SQLStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow(s.dialect.Rebind("SELECT value FROM meta WHERE key = ?"), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLStore) setMetaFlag(key string) error {
	_, err := s.db.Exec(s.dialect.Rebind(
		`INSERT INTO meta (key, value) VALUES (?, 'true')
		 ON CONFLICT (key) DO UPDATE SET value = 'true'`), key)
	return err
}

// migrateTaggingTagIndex is idempotent; CREATE INDEX IF NOT EXISTS is
// accepted by both dialects.
func (s *SQLStore) migrateTaggingTagIndex() error {
	_, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_taggings_tag_item ON taggings(tag_id, item_id)`)
	if err != nil {
		return fmt.Errorf("creating idx_taggings_tag_item: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
