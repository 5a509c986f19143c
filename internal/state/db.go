// Package state provides SQLite-based persistence for tasks, proposals,
// decisions, transitions and routing outcomes.
// It handles both global state (~/.local/share/agora/agora.db) and
// project-local state (.agora/state.db).
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DriverSQLite is the pure-Go modernc.org/sqlite driver (default).
const DriverSQLite = "sqlite"

// DriverSQLite3 is the cgo mattn/go-sqlite3 driver, available in cgo builds.
const DriverSQLite3 = "sqlite3"

// DB wraps an SQLite database connection with agora-specific operations.
type DB struct {
	conn   *sql.DB
	path   string
	driver string
	mu     sync.RWMutex
}

// GlobalDBPath returns the path to the global agora database.
func GlobalDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "agora", "agora.db")
}

// ProjectDBPath returns the path to the project-local database.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".agora", "state.db")
}

// Open opens an SQLite database at the given path with the default driver.
func Open(path string) (*DB, error) {
	return OpenWithDriver(DriverSQLite, path)
}

// OpenWithDriver opens an SQLite database using the named driver.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent readers in other processes.
func OpenWithDriver(driver, path string) (*DB, error) {
	if driver == "" {
		driver = DriverSQLite
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn, err := buildDSN(driver, path)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps per-connection pragmas in force and
	// serializes writers inside this process.
	conn.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Other processes (CLI invocations, the serve loop) share the file.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &DB{
		conn:   conn,
		path:   path,
		driver: driver,
	}, nil
}

// buildDSN returns the data source name for a driver. Pragmas are passed
// in the DSN so they also apply to any reopened connection.
func buildDSN(driver, path string) (string, error) {
	switch driver {
	case DriverSQLite:
		return path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	case DriverSQLite3:
		return path + "?_busy_timeout=5000&_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// OpenGlobal opens the global agora database.
func OpenGlobal() (*DB, error) {
	return Open(GlobalDBPath())
}

// OpenProject opens the project-local database.
func OpenProject(projectRoot string) (*DB, error) {
	return Open(ProjectDBPath(projectRoot))
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	// Create schema version table
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	// Apply migrations
	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Tasks},
		{2, migrationV2Transitions},
		{3, migrationV3Proposals},
		{4, migrationV4Decisions},
		{5, migrationV5Outcomes},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationV1Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	parent_id TEXT,
	phase INTEGER NOT NULL DEFAULT 0,
	title TEXT NOT NULL,
	description TEXT,
	type TEXT NOT NULL,
	complexity INTEGER NOT NULL,
	risk INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	strategy TEXT NOT NULL,
	depends_on TEXT,
	due_at TEXT,
	metadata TEXT,
	created_by TEXT,
	result TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_parent_id ON tasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);

CREATE TABLE IF NOT EXISTS task_participants (
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	agent_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (task_id, agent_id)
);

CREATE INDEX IF NOT EXISTS idx_task_participants_agent ON task_participants(agent_id);
`

const migrationV2Transitions = `
CREATE TABLE IF NOT EXISTS transitions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	at TEXT NOT NULL,
	actor TEXT,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_transitions_task_id ON transitions(task_id);
`

const migrationV3Proposals = `
CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	agent_id TEXT NOT NULL,
	content TEXT NOT NULL,
	input_type TEXT NOT NULL,
	confidence REAL NOT NULL,
	submitted_at TEXT NOT NULL,
	UNIQUE (task_id, agent_id)
);

CREATE INDEX IF NOT EXISTS idx_proposals_task_id ON proposals(task_id);
`

const migrationV4Decisions = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL UNIQUE REFERENCES tasks(id) ON DELETE CASCADE,
	winning_proposal_id TEXT,
	content TEXT NOT NULL,
	merged_from TEXT,
	strategies TEXT NOT NULL,
	scores TEXT,
	agreement_score REAL NOT NULL,
	degraded INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
`

const migrationV5Outcomes = `
CREATE TABLE IF NOT EXISTS routing_outcomes (
	task_id TEXT PRIMARY KEY,
	strategy TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	agreement_score REAL,
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_routing_outcomes_recorded_at ON routing_outcomes(recorded_at);
`

// Exec executes a query that doesn't return rows.
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows.
// Callers must close the rows before issuing another statement.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn.QueryRow(query, args...)
}

// Transaction runs the given function within a transaction.
func (db *DB) Transaction(fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// formatTime formats a time.Time for SQLite storage.
// Nanosecond precision keeps submission order stable for tie-breaks.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses a nullable time string from SQLite.
func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

// PurgeTerminalTasks deletes completed and failed tasks last updated before
// the cutoff, together with their proposals, decisions and transitions.
// Tasks that an unfinished task depends on are kept. Returns the number of
// tasks deleted.
func (db *DB) PurgeTerminalTasks(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`
		DELETE FROM tasks
		WHERE status IN ('completed', 'failed') AND updated_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM tasks AS waiting, json_each(waiting.depends_on) AS dep
			WHERE waiting.depends_on IS NOT NULL
			AND waiting.status NOT IN ('completed', 'failed')
			AND dep.value = tasks.id
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge terminal tasks: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return count, nil
}
