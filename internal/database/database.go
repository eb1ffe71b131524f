package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pathgc/internal/gc"
)

// HistoryDB manages the SQLite database of path GC runs
type HistoryDB struct {
	db *sql.DB
}

// RunRecord is one step invocation
type RunRecord struct {
	RunID        string
	StepID       string
	JobID        string
	Status       string
	FileSystem   string
	StartedAt    time.Time
	FinishedAt   time.Time
	Dropped      int
	Missing      int
	Pruned       int
	Output       string
	ErrorMessage string
}

// EntryRecord is one trail entry of a run
type EntryRecord struct {
	ID         int64
	RunID      string
	JobID      string
	Seq        int
	Action     string
	Path       string
	Message    string
	FinishedAt time.Time
}

// NewHistoryDB creates a new database connection and initializes schema
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// file: prefix with _loc=auto enables automatic DATETIME parsing;
	// _foreign_keys applies to every pooled connection
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Ping() does not create the file, a query does
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	// Enable WAL mode so the query CLI can read while a step writes
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	hdb := &HistoryDB{db: db}
	if err = hdb.initSchema(); err != nil {
		return nil, err
	}

	return hdb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		step_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		status TEXT NOT NULL,
		filesystem TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		dropped INTEGER NOT NULL DEFAULT 0,
		missing INTEGER NOT NULL DEFAULT 0,
		pruned INTEGER NOT NULL DEFAULT 0,
		output TEXT,
		error_message TEXT,

		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
	CREATE INDEX IF NOT EXISTS idx_runs_job_id ON runs(job_id);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		action TEXT NOT NULL,
		path TEXT,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_run_id ON entries(run_id);
	CREATE INDEX IF NOT EXISTS idx_entries_action ON entries(action);
	CREATE INDEX IF NOT EXISTS idx_entries_path ON entries(path);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// RecordRun stores a run and every entry of its trail in one transaction.
// Timestamps are stored in UTC so they compare as text.
func (d *HistoryDB) RecordRun(run RunRecord, trail gc.Trail) (err error) {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(`
	INSERT INTO runs (
		run_id, step_id, job_id, status, filesystem, started_at, finished_at,
		dropped, missing, pruned, output, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		run.StepID,
		run.JobID,
		run.Status,
		run.FileSystem,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		trail.Count(gc.ActionDropped),
		trail.Count(gc.ActionMissing),
		trail.Count(gc.ActionPruned),
		run.Output,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO entries (run_id, seq, action, path, message) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range trail {
		if _, err = stmt.Exec(run.RunID, i, string(e.Action), e.Path, e.String()); err != nil {
			return fmt.Errorf("insert entry %d of run %s: %w", i, run.RunID, err)
		}
	}

	return tx.Commit()
}

// Close closes the database connection
func (d *HistoryDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run periodically)
func (d *HistoryDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}

// GetDatabaseStats returns database statistics
func (d *HistoryDB) GetDatabaseStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalRuns, totalEntries int64
	if err := d.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&totalRuns); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&totalEntries); err != nil {
		return nil, err
	}
	stats["total_runs"] = totalRuns
	stats["total_entries"] = totalEntries

	// Database size
	var pageCount, pageSize int64
	if err := d.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	stats["database_size_bytes"] = pageCount * pageSize

	// Date range. Aggregates come back as text, not DATETIME.
	var oldest, newest sql.NullString
	err := d.db.QueryRow("SELECT MIN(finished_at), MAX(finished_at) FROM runs").Scan(&oldest, &newest)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if t, ok := parseTimestamp(oldest); ok {
		stats["oldest_run"] = t
	}
	if t, ok := parseTimestamp(newest); ok {
		stats["newest_run"] = t
	}

	return stats, nil
}

// SQLite stores time.Time as "2025-11-19 23:01:56.489344855-05:00"
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s.String); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
