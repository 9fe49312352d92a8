package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRootCommand_ReapsOrphansBeforeSubcommands(t *testing.T) {
	// A stale data directory in the temp root, old enough to be reaped.
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("dumplift-pg-stale-%d", os.Getpid()))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("create stale dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(dir, old, old); err != nil {
		t.Fatalf("age stale dir: %v", err)
	}

	// Any subcommand must reap leftovers, not just migrate.
	rootCmd.SetArgs([]string{"paths"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute paths: %v", err)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("stale data dir survived command startup: %v", err)
	}
}
