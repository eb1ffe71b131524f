package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"pathgc/internal/database"
)

func TestOpenHistoryMissingFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "typo", "history.db")

	if _, err := openHistory(dbPath); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "typo")); !os.IsNotExist(err) {
		t.Error("opening a missing database must not create its directory")
	}
}

func TestOpenHistoryExisting(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	created, err := database.NewHistoryDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	created.Close()

	db, err := openHistory(dbPath)
	if err != nil {
		t.Fatalf("openHistory failed: %v", err)
	}
	defer db.Close()

	if _, err := db.GetRecentRuns(1); err != nil {
		t.Errorf("GetRecentRuns failed: %v", err)
	}
}
