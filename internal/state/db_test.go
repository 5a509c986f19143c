package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/agora/pkg/models"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr bool
	}{
		{"flat path", func(t *testing.T) string { return tempDBPath(t) }, false},
		{"nested directories are created", func(t *testing.T) string {
			return filepath.Join(t.TempDir(), ".agora", "nested", "state.db")
		}, false},
		// Nothing can be created under /proc.
		{"unwritable path", func(*testing.T) string { return "/proc/nonexistent/state.db" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path(t)
			db, err := Open(path)
			if tt.wantErr {
				if err == nil {
					db.Close()
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer db.Close()

			if db.Path() != path || db.Driver() != DriverSQLite {
				t.Errorf("Path/Driver = %q/%q", db.Path(), db.Driver())
			}
			if _, err := os.Stat(path); err != nil {
				t.Errorf("database file missing: %v", err)
			}
		})
	}
}

func TestClose(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := db.GetTask("any"); err == nil {
		t.Error("expected error reading a closed store")
	}
}

func TestMigrate(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	// Re-running is a no-op.
	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate (run %d) failed: %v", i, err)
		}
	}

	for _, table := range []string{"schema_version", "tasks", "task_participants", "transitions", "proposals", "decisions", "routing_outcomes"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count); err != nil {
			t.Fatalf("check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s missing", table)
		}
	}

	rows, err := db.Query("SELECT version FROM schema_version ORDER BY version")
	if err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	defer rows.Close()
	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("scan version: %v", err)
		}
		versions = append(versions, v)
	}
	if fmt.Sprint(versions) != "[1 2 3 4 5]" {
		t.Errorf("versions = %v, want [1 2 3 4 5]", versions)
	}
}

func TestTransaction(t *testing.T) {
	tests := []struct {
		name      string
		fail      bool
		wantCount int
	}{
		{"commit", false, 1},
		{"rollback on error", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			err := db.Transaction(func(tx *sql.Tx) error {
				if _, err := tx.Exec(`INSERT INTO routing_outcomes (task_id, strategy, succeeded, recorded_at) VALUES (?, ?, ?, ?)`,
					"tx-1", "consensus", 1, formatTime(time.Now())); err != nil {
					return err
				}
				if tt.fail {
					return errors.New("abort")
				}
				return nil
			})
			if (err != nil) != tt.fail {
				t.Fatalf("Transaction error = %v, want failure %v", err, tt.fail)
			}

			var count int
			if err := db.QueryRow("SELECT COUNT(*) FROM routing_outcomes WHERE task_id = ?", "tx-1").Scan(&count); err != nil {
				t.Fatalf("count outcomes: %v", err)
			}
			if count != tt.wantCount {
				t.Errorf("count = %d, want %d", count, tt.wantCount)
			}
		})
	}
}

func TestDBPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := GlobalDBPath(), "/custom/data/agora/agora.db"; got != want {
		t.Errorf("GlobalDBPath() = %q, want %q", got, want)
	}

	t.Setenv("XDG_DATA_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := GlobalDBPath(), filepath.Join(home, ".local", "share", "agora", "agora.db"); got != want {
		t.Errorf("GlobalDBPath() = %q, want %q", got, want)
	}

	if got, want := ProjectDBPath("/my/project"), "/my/project/.agora/state.db"; got != want {
		t.Errorf("ProjectDBPath() = %q, want %q", got, want)
	}
}

func TestTimeEncoding(t *testing.T) {
	now := time.Now()
	parsed, err := parseTime(formatTime(now))
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	// Nanoseconds survive, so transitions keep their order.
	if !now.UTC().Equal(parsed) {
		t.Errorf("round trip = %v, want %v", parsed, now.UTC())
	}

	tests := []struct {
		name  string
		in    sql.NullString
		isNil bool
	}{
		{"valid", sql.NullString{String: "2026-01-01T12:00:00Z", Valid: true}, false},
		{"null", sql.NullString{}, true},
		{"garbage", sql.NullString{String: "not a time", Valid: true}, true},
	}
	for _, tt := range tests {
		if got := parseNullableTime(tt.in); (got == nil) != tt.isNil {
			t.Errorf("%s: parseNullableTime = %v", tt.name, got)
		}
	}
}

func TestOpenWithDriver_Unsupported(t *testing.T) {
	if _, err := OpenWithDriver("postgres", tempDBPath(t)); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestPurgeTerminalTasks(t *testing.T) {
	db := setupTestDB(t)

	old := newTestTask("old-done")
	old.Status = models.TaskStatusCompleted
	old.UpdatedAt = time.Now().Add(-48 * time.Hour)
	recent := newTestTask("recent-done")
	recent.Status = models.TaskStatusCompleted
	active := newTestTask("old-active")
	active.UpdatedAt = time.Now().Add(-48 * time.Hour)
	needed := newTestTask("old-needed")
	needed.Status = models.TaskStatusCompleted
	needed.UpdatedAt = time.Now().Add(-48 * time.Hour)
	dependent := newTestTask("dependent")
	dependent.DependsOn = []string{"old-needed"}

	for _, tk := range []*models.Task{old, recent, active, needed, dependent} {
		if err := db.CreateTask(tk); err != nil {
			t.Fatalf("CreateTask(%s) failed: %v", tk.ID, err)
		}
	}

	count, err := db.PurgeTerminalTasks(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeTerminalTasks failed: %v", err)
	}
	if count != 1 {
		t.Errorf("purged %d tasks, want 1", count)
	}

	got, err := db.GetTask("old-done")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got != nil {
		t.Error("expected old completed task to be purged")
	}
	for _, id := range []string{"recent-done", "old-active", "old-needed", "dependent"} {
		got, err := db.GetTask(id)
		if err != nil || got == nil {
			t.Errorf("GetTask(%s) = %v, %v; want task", id, got, err)
		}
	}
}
