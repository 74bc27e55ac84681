package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/martinsuchenak/gwconsole/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteStorage implements Storage with SQLite backend
type SQLiteStorage struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens (creating if needed) gwconsole.db in dataDir.
func NewSQLiteStorage(dataDir string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, "gwconsole.db")

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ss := &SQLiteStorage{
		db:   db,
		path: dbPath,
	}

	if err := ss.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if err := ss.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	// The file holds a live session token.
	if err := os.Chmod(dbPath, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("restricting database permissions: %w", err)
	}

	return ss, nil
}

func (ss *SQLiteStorage) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}

	_, err = ss.db.Exec(string(schema))
	return err
}

// Path returns the database file location.
func (ss *SQLiteStorage) Path() string {
	return ss.path
}

// Close closes the database connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

// Get returns the value stored under key and whether it exists.
func (ss *SQLiteStorage) Get(key string) (string, bool, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	var value string
	err := ss.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (ss *SQLiteStorage) Set(key, value string) error {
	return ss.SetMany(map[string]string{key: value})
}

// SetMany stores every pair in one transaction.
func (ss *SQLiteStorage) SetMany(values map[string]string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	tx, err := ss.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range values {
		_, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now)
		if err != nil {
			return fmt.Errorf("writing setting %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// Remove deletes keys in one transaction. Missing keys are ignored.
func (ss *SQLiteStorage) Remove(keys ...string) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	tx, err := ss.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
			return fmt.Errorf("removing setting %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// CreateClone inserts a clone record, assigning ID and timestamps.
func (ss *SQLiteStorage) CreateClone(rec *model.CloneRecord) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if rec.ID == "" {
		rec.ID = generateID()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := ss.db.Exec(`
		INSERT INTO clone_operations (id, server_url, session_id, source_uid, source_name, uid, name, ipv4_address,
		                              state, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ServerURL, rec.SessionID, rec.SourceUID, rec.SourceName, rec.UID, rec.Name, rec.IPv4Address,
		string(rec.State), rec.Message, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting clone record: %w", err)
	}
	return nil
}

// UpdateClone stores the new uid, state and message of an existing record.
func (ss *SQLiteStorage) UpdateClone(rec *model.CloneRecord) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	rec.UpdatedAt = time.Now()

	result, err := ss.db.Exec(`
		UPDATE clone_operations
		SET uid = ?, state = ?, message = ?, updated_at = ?
		WHERE id = ?
	`, rec.UID, string(rec.State), rec.Message, rec.UpdatedAt, rec.ID)
	if err != nil {
		return fmt.Errorf("updating clone record: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrCloneNotFound
	}
	return nil
}

// GetCloneByUID returns the newest record for a created gateway.
func (ss *SQLiteStorage) GetCloneByUID(serverURL, uid string) (*model.CloneRecord, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	rows, err := ss.db.Query(`
		SELECT id, server_url, session_id, source_uid, source_name, uid, name, ipv4_address, state, message, created_at, updated_at
		FROM clone_operations
		WHERE server_url = ? AND uid = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, serverURL, uid)
	if err != nil {
		return nil, fmt.Errorf("querying clone record: %w", err)
	}
	defer rows.Close()

	records, err := scanClones(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrCloneNotFound
	}
	return &records[0], nil
}

// ListClones returns clone records, newest first.
func (ss *SQLiteStorage) ListClones(filter *CloneFilter) ([]model.CloneRecord, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	query := `
		SELECT id, server_url, session_id, source_uid, source_name, uid, name, ipv4_address, state, message, created_at, updated_at
		FROM clone_operations
		WHERE 1 = 1
	`
	var args []any
	if filter != nil && filter.ServerURL != "" {
		query += " AND server_url = ?"
		args = append(args, filter.ServerURL)
	}
	if filter != nil && filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter != nil && filter.Pending {
		query += " AND state IN (?, ?, ?)"
		args = append(args, pendingStates()...)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := ss.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying clone records: %w", err)
	}
	defer rows.Close()

	return scanClones(rows)
}

// MarkSessionPublished settles the pending records of one session after a
// successful publish of that session.
func (ss *SQLiteStorage) MarkSessionPublished(serverURL, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, nil
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	args := append([]any{string(model.ClonePublished), time.Now(), serverURL, sessionID}, pendingStates()...)
	result, err := ss.db.Exec(`
		UPDATE clone_operations
		SET state = ?, message = '', updated_at = ?
		WHERE server_url = ? AND session_id = ? AND state IN (?, ?, ?)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("settling clone records: %w", err)
	}
	return result.RowsAffected()
}

func pendingStates() []any {
	return []any{string(model.CloneCreated), string(model.ClonePublishFailed), string(model.CloneUnknown)}
}

func scanClones(rows *sql.Rows) ([]model.CloneRecord, error) {
	var records []model.CloneRecord
	for rows.Next() {
		var rec model.CloneRecord
		var state string
		if err := rows.Scan(&rec.ID, &rec.ServerURL, &rec.SessionID, &rec.SourceUID, &rec.SourceName, &rec.UID, &rec.Name,
			&rec.IPv4Address, &state, &rec.Message, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning clone record: %w", err)
		}
		rec.State = model.CloneState(state)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// generateID generates a UUIDv7 for a record
func generateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
