package history

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStore_RecordAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()

	first := Run{
		StartedAt:      time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC),
		Duration:       90 * time.Second,
		SourceVersion:  "16.0",
		TargetVersion:  "17.0",
		Success:        true,
		ScriptsApplied: []string{"a", "b", "c"},
	}
	second := Run{
		StartedAt:     time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC),
		Duration:      5 * time.Second,
		SourceVersion: "17.0",
		TargetVersion: "18.0",
		Success:       false,
		Error:         "script 17-18-020 failed",
	}
	if err := st.RecordRun(first); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if err := st.RecordRun(second); err != nil {
		t.Fatalf("record second: %v", err)
	}

	runs, err := st.ListRuns()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	// Newest first.
	if runs[0].SourceVersion != "17.0" || runs[0].Success {
		t.Fatalf("unexpected first row: %+v", runs[0])
	}
	if runs[0].Error != "script 17-18-020 failed" {
		t.Fatalf("error not persisted: %q", runs[0].Error)
	}
	if len(runs[1].ScriptsApplied) != 3 || runs[1].ScriptsApplied[1] != "b" {
		t.Fatalf("applied scripts not persisted: %v", runs[1].ScriptsApplied)
	}
	if !runs[1].StartedAt.Equal(first.StartedAt) {
		t.Fatalf("start time not persisted: %v", runs[1].StartedAt)
	}
	if runs[1].Duration != 90*time.Second {
		t.Fatalf("duration not persisted: %v", runs[1].Duration)
	}
}

func TestStore_EmptyList(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()

	runs, err := st.ListRuns()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs, got %d", len(runs))
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.RecordRun(Run{StartedAt: time.Now(), SourceVersion: "16.0", TargetVersion: "17.0", Success: true}); err != nil {
		t.Fatalf("record: %v", err)
	}
	_ = st.Close()

	st2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = st2.Close() }()
	runs, err := st2.ListRuns()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected persisted run, got %d", len(runs))
	}
}
