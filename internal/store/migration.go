package store

import (
	"database/sql"
	"errors"
	"fmt"
)

const currentSchemaVersion = 2

// RunMigrations applies any pending database migrations
func (s *Store) RunMigrations() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migration to v2 failed: %w", err)
		}
	}

	return nil
}

// getSchemaVersion returns the schema version of the database
func (s *Store) getSchemaVersion() (int, error) {
	var tableName string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='avc_schema_version'
	`).Scan(&tableName)

	if errors.Is(err, sql.ErrNoRows) {
		// No version table: either an empty database, which Initialize
		// creates at the current version, or a v1 layout.
		var tables int
		if err := s.db.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type='table' AND name='profile_items'
		`).Scan(&tables); err != nil {
			return 0, err
		}
		if tables == 0 {
			return currentSchemaVersion, nil
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 1) FROM avc_schema_version").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// migrateToV2 adds the language and direction columns to databases created
// before extraction reported them.
func (s *Store) migrateToV2() error {
	columns := []struct{ name, ddl string }{
		{"text_language", `ALTER TABLE profile_items ADD COLUMN text_language TEXT`},
		{"text_direction", `ALTER TABLE profile_items ADD COLUMN text_direction TEXT NOT NULL DEFAULT 'ltr'`},
	}
	for _, c := range columns {
		// SQLite doesn't have IF NOT EXISTS for ALTER TABLE, so we check first
		var count int
		err := s.db.QueryRow(`
			SELECT COUNT(*) FROM pragma_table_info('profile_items')
			WHERE name = ?
		`, c.name).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(c.ddl); err != nil {
			return fmt.Errorf("add column %s: %w", c.name, err)
		}
	}

	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS avc_schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT OR REPLACE INTO avc_schema_version (version) VALUES (?)", 2)
	return err
}
