package workspace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"campaignsmith/internal/logging"
)

// SQLiteStore keeps all artifacts in a single SQLite database. WAL mode
// gives per-row atomic replacement, so a reader never observes a partial
// artifact body.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewSQLiteStore creates or opens the workspace database under root.
func NewSQLiteStore(root string) (*SQLiteStore, error) {
	dbPath := filepath.Join(root, "workspace.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, &IOError{Op: "init", Err: err}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, &IOError{Op: "migrate", Err: err}
	}
	logging.WorkspaceDebug("sqlite store opened at %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			namespace  TEXT NOT NULL,
			name       TEXT NOT NULL,
			body       TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
			PRIMARY KEY (namespace, name)
		)`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReadJSON decodes an artifact. ErrNotFound when no row exists.
func (s *SQLiteStore) ReadJSON(namespace, name string, out any) error {
	if !validNamespace(namespace) {
		return &IOError{Op: "read", Namespace: namespace, Name: name, Err: fmt.Errorf("unknown namespace")}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRow(
		`SELECT body FROM artifacts WHERE namespace = ? AND name = ?`,
		namespace, name,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return &IOError{Op: "read", Namespace: namespace, Name: name, Err: err}
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return &IOError{Op: "decode", Namespace: namespace, Name: name, Err: err}
	}
	return nil
}

// WriteJSON upserts the artifact in one statement; atomic per row.
func (s *SQLiteStore) WriteJSON(namespace, name string, value any) error {
	if !validNamespace(namespace) {
		return &IOError{Op: "write", Namespace: namespace, Name: name, Err: fmt.Errorf("unknown namespace")}
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Namespace: namespace, Name: name, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO artifacts (namespace, name, body, updated_at)
		 VALUES (?, ?, ?, strftime('%s','now'))`,
		namespace, name, string(data),
	)
	if err != nil {
		return &IOError{Op: "write", Namespace: namespace, Name: name, Err: err}
	}
	logging.WorkspaceDebug("wrote %s/%s (%d bytes)", namespace, name, len(data))
	return nil
}

// ListNamespace returns artifact names sorted lexically.
func (s *SQLiteStore) ListNamespace(namespace string) ([]string, error) {
	if !validNamespace(namespace) {
		return nil, &IOError{Op: "list", Namespace: namespace, Err: fmt.Errorf("unknown namespace")}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT name FROM artifacts WHERE namespace = ? ORDER BY name`,
		namespace,
	)
	if err != nil {
		return nil, &IOError{Op: "list", Namespace: namespace, Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &IOError{Op: "list", Namespace: namespace, Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "list", Namespace: namespace, Err: err}
	}
	return names, nil
}
