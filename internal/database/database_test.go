package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pathgc/internal/gc"
)

func openTestDB(t *testing.T) *HistoryDB {
	t.Helper()
	db, err := NewHistoryDB(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func sampleTrail() gc.Trail {
	return gc.Trail{
		{Action: gc.ActionHeader, Path: "file:///"},
		{Action: gc.ActionDropped, Path: "/wd/kylin-job1/stats"},
		{Action: gc.ActionDropped, Path: "/wd/kylin-job1/hfiles"},
		{Action: gc.ActionPruned, Path: "/wd/kylin-job1"},
	}
}

func sampleRun(runID, jobID, status string, finished time.Time) RunRecord {
	return RunRecord{
		RunID:      runID,
		StepID:     "gc-" + jobID,
		JobID:      jobID,
		Status:     status,
		FileSystem: "file:///",
		StartedAt:  finished.Add(-2 * time.Second),
		FinishedAt: finished,
		Output:     sampleTrail().String(),
	}
}

// TestDatabaseCreation verifies database file creation and initialization
func TestDatabaseCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "history.db")

	db, err := NewHistoryDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file not created at %s", dbPath)
	}
}

// TestWALModeEnabled verifies that WAL mode is properly configured
func TestWALModeEnabled(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	if err := db.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var foreignKeys int
	if err := db.db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to query foreign keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign_keys=1, got %d", foreignKeys)
	}
}

// TestSchemaCreation verifies all tables are created
func TestSchemaCreation(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"runs", "entries", "schema_version"} {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}

	var version int
	if err := db.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("Failed to query schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected schema version 1, got %d", version)
	}
}

func TestRecordRunAndGetRun(t *testing.T) {
	db := openTestDB(t)
	finished := time.Now()

	if err := db.RecordRun(sampleRun("run-1", "job1", "SUCCEEDED", finished), sampleTrail()); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	run, entries, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.JobID != "job1" || run.Status != "SUCCEEDED" || run.StepID != "gc-job1" {
		t.Errorf("unexpected run: %+v", run)
	}
	if run.Dropped != 2 || run.Missing != 0 || run.Pruned != 1 {
		t.Errorf("counts = %d/%d/%d, expected 2/0/1", run.Dropped, run.Missing, run.Pruned)
	}
	if !run.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, expected %v", run.FinishedAt, finished)
	}
	if run.Output != sampleTrail().String() {
		t.Errorf("Output = %q", run.Output)
	}

	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
		if e.JobID != "job1" {
			t.Errorf("entry %d job = %q", i, e.JobID)
		}
	}
	if entries[3].Action != string(gc.ActionPruned) || entries[3].Message != "path /wd/kylin-job1 is empty and dropped." {
		t.Errorf("unexpected last entry: %+v", entries[3])
	}
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)

	if _, _, err := db.GetRun("nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestRecordRunDuplicateRollsBack(t *testing.T) {
	db := openTestDB(t)
	run := sampleRun("run-dup", "job1", "SUCCEEDED", time.Now())

	if err := db.RecordRun(run, sampleTrail()); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := db.RecordRun(run, sampleTrail()); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}

	var n int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM entries WHERE run_id = ?", "run-dup").Scan(&n); err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 entries after rollback, got %d", n)
	}
}

// TestQueryMethods exercises the query helpers used by pathgc-query
func TestQueryMethods(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	for i := 0; i < 5; i++ {
		status := "SUCCEEDED"
		if i == 4 {
			status = "ERRORED"
		}
		job := fmt.Sprintf("job%d", i%2)
		run := sampleRun(fmt.Sprintf("run-%d", i), job, status, now.Add(time.Duration(i)*time.Minute))
		if err := db.RecordRun(run, sampleTrail()); err != nil {
			t.Fatalf("RecordRun %d failed: %v", i, err)
		}
	}

	t.Run("GetRecentRuns", func(t *testing.T) {
		runs, err := db.GetRecentRuns(3)
		if err != nil {
			t.Fatalf("GetRecentRuns failed: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		if runs[0].RunID != "run-4" {
			t.Errorf("newest run = %s, expected run-4", runs[0].RunID)
		}
	})

	t.Run("GetRunsByJob", func(t *testing.T) {
		runs, err := db.GetRunsByJob("job0")
		if err != nil {
			t.Fatalf("GetRunsByJob failed: %v", err)
		}
		if len(runs) != 3 {
			t.Errorf("expected 3 runs for job0, got %d", len(runs))
		}
	})

	t.Run("GetRunsByStatus", func(t *testing.T) {
		runs, err := db.GetRunsByStatus("ERRORED", 10)
		if err != nil {
			t.Fatalf("GetRunsByStatus failed: %v", err)
		}
		if len(runs) != 1 || runs[0].RunID != "run-4" {
			t.Errorf("unexpected errored runs: %+v", runs)
		}
	})

	t.Run("GetEntriesByAction", func(t *testing.T) {
		entries, err := db.GetEntriesByAction(string(gc.ActionPruned), 2)
		if err != nil {
			t.Fatalf("GetEntriesByAction failed: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("expected 2 entries, got %d", len(entries))
		}
	})

	t.Run("GetEntriesByPath", func(t *testing.T) {
		entries, err := db.GetEntriesByPath("%/hfiles")
		if err != nil {
			t.Fatalf("GetEntriesByPath failed: %v", err)
		}
		if len(entries) != 5 {
			t.Errorf("expected 5 entries, got %d", len(entries))
		}
	})

	t.Run("GetRunStats", func(t *testing.T) {
		stats, err := db.GetRunStats(7)
		if err != nil {
			t.Fatalf("GetRunStats failed: %v", err)
		}
		if stats.TotalRuns != 5 || stats.Succeeded != 4 || stats.Errored != 1 {
			t.Errorf("unexpected run counts: %+v", stats)
		}
		if stats.PathsDropped != 10 || stats.JobDirsFreed != 5 {
			t.Errorf("unexpected path counts: %+v", stats)
		}
	})

	t.Run("GetDatabaseStats", func(t *testing.T) {
		stats, err := db.GetDatabaseStats()
		if err != nil {
			t.Fatalf("GetDatabaseStats failed: %v", err)
		}
		if stats["total_runs"].(int64) != 5 || stats["total_entries"].(int64) != 20 {
			t.Errorf("unexpected stats: %v", stats)
		}
		if _, ok := stats["newest_run"]; !ok {
			t.Error("newest_run should be parsed")
		}
	})
}

func TestDeleteOldRunsCascades(t *testing.T) {
	db := openTestDB(t)

	if err := db.RecordRun(sampleRun("old", "job1", "SUCCEEDED", time.Now().AddDate(0, 0, -40)), sampleTrail()); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := db.RecordRun(sampleRun("new", "job1", "SUCCEEDED", time.Now()), sampleTrail()); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	deleted, err := db.DeleteOldRuns(30)
	if err != nil {
		t.Fatalf("DeleteOldRuns failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d runs, expected 1", deleted)
	}

	var n int
	if err := db.db.QueryRow("SELECT COUNT(*) FROM entries WHERE run_id = 'old'").Scan(&n); err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if n != 0 {
		t.Errorf("entries of deleted run should cascade, %d left", n)
	}

	if err := db.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
}
