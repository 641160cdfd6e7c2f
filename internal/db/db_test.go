package db

import (
	"path/filepath"
	"testing"
)

func TestNew_CreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	tables := []string{"batches", "tasks", "config", "_migrations"}
	for _, table := range tables {
		var name string
		err := database.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestNew_WALEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer database.Close()

	var journalMode string
	err = database.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	if err != nil {
		t.Fatalf("PRAGMA journal_mode error = %v", err)
	}

	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}
}

func TestNew_MigrationsIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var count int
	err = db2.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count)
	if err != nil {
		t.Fatalf("count migrations error = %v", err)
	}

	if count != 3 {
		t.Errorf("migration count = %d, want 3", count)
	}
}

func TestMarkInterruptedBatches(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db1, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = db1.Conn().Exec(`
		INSERT INTO batches (id, status, mode, manifest_json, created_at, updated_at)
		VALUES ('b-running', 'running', 'crop', '{}', datetime('now'), datetime('now')),
		       ('b-done', 'completed', 'crop', '{}', datetime('now'), datetime('now'))
	`)
	if err != nil {
		t.Fatalf("insert batch error = %v", err)
	}
	_, err = db1.Conn().Exec(`
		INSERT INTO tasks (batch_id, seq, video_id, video_path, bin_index, start_s, end_s, filename, rel_path, output_path, status)
		VALUES ('b-running', 1, 'a.mp4', '/in/a.mp4', 1, 0, 10, 'a.mp4', 'a.mp4', '/out/a.mp4', 'succeeded'),
		       ('b-running', 2, 'a.mp4', '/in/a.mp4', 2, 10, 20, 'a_2.mp4', 'a_2.mp4', '/out/a_2.mp4', 'pending')
	`)
	if err != nil {
		t.Fatalf("insert tasks error = %v", err)
	}
	db1.Close()

	db2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db2.Close()

	var status, errMsg string
	err = db2.Conn().QueryRow("SELECT status, error FROM batches WHERE id = 'b-running'").Scan(&status, &errMsg)
	if err != nil {
		t.Fatalf("query batch error = %v", err)
	}
	if status != "failed" {
		t.Errorf("batch status = %s, want failed", status)
	}
	if errMsg != "interrupted by restart" {
		t.Errorf("batch error = %s, want 'interrupted by restart'", errMsg)
	}

	err = db2.Conn().QueryRow("SELECT status FROM batches WHERE id = 'b-done'").Scan(&status)
	if err != nil {
		t.Fatalf("query batch error = %v", err)
	}
	if status != "completed" {
		t.Errorf("completed batch status = %s, want completed", status)
	}

	var first, second string
	db2.Conn().QueryRow("SELECT status FROM tasks WHERE batch_id = 'b-running' AND seq = 1").Scan(&first)
	db2.Conn().QueryRow("SELECT status FROM tasks WHERE batch_id = 'b-running' AND seq = 2").Scan(&second)
	if first != "succeeded" {
		t.Errorf("finished task status = %s, want succeeded", first)
	}
	if second != "failed" {
		t.Errorf("pending task status = %s, want failed", second)
	}
}
