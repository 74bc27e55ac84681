package storage

import (
	"database/sql"
	"fmt"
)

// migration is one forward-only schema change.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

// migrations run in order; schema.sql is version 1.
var migrations = []migration{
	{version: 1, name: "initial schema", apply: func(tx *sql.Tx) error { return nil }},
	{version: 2, name: "clone session id", apply: func(tx *sql.Tx) error {
		if _, err := tx.Exec("ALTER TABLE clone_operations ADD COLUMN session_id TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
		_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_clone_operations_session ON clone_operations(server_url, session_id)")
		return err
	}},
}

// migrate applies every migration newer than the recorded version.
func (ss *SQLiteStorage) migrate() error {
	var version sql.NullInt64
	if err := ss.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return fmt.Errorf("checking migration version: %w", err)
	}

	for _, m := range migrations {
		if version.Valid && int64(m.version) <= version.Int64 {
			continue
		}

		tx, err := ss.db.Begin()
		if err != nil {
			return err
		}
		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration.
func (ss *SQLiteStorage) SchemaVersion() (int, error) {
	var version sql.NullInt64
	if err := ss.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}
