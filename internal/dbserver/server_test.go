package dbserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/dumplift/internal/constants"
)

func TestFindFreePort_InRange(t *testing.T) {
	port, err := findFreePort(constants.EmbeddedPortRangeStart, constants.EmbeddedPortRangeEnd)
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	if port < constants.EmbeddedPortRangeStart || port > constants.EmbeddedPortRangeEnd {
		t.Fatalf("port %d outside probe range", port)
	}
}

func TestFindFreePort_EmptyRange(t *testing.T) {
	if _, err := findFreePort(10, 9); err == nil {
		t.Fatalf("expected error for empty range")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUninitialized: "uninitialized",
		StateInitialized:   "initialized",
		StateRunning:       "running",
		StateStopped:       "stopped",
		StateCleanedUp:     "cleaned-up",
		State(99):          "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("state %d: expected %q, got %q", s, want, s.String())
		}
	}
}

func TestConnInfo_InvalidBeforeStart(t *testing.T) {
	s := New(Options{})
	if _, err := s.ConnInfo(); err == nil {
		t.Fatalf("expected ConnInfo to fail before Start")
	}
}

func TestWritePasswordFile(t *testing.T) {
	path, err := writePasswordFile("s3cret")
	if err != nil {
		t.Fatalf("write password file: %v", err)
	}
	defer func() { _ = os.Remove(path) }()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "s3cret\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestReadPidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, constants.PidFileName)

	if _, ok := readPidFile(path); ok {
		t.Fatalf("missing file must not yield a pid")
	}

	if err := os.WriteFile(path, []byte("12345\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, ok := readPidFile(path)
	if !ok || pid != 12345 {
		t.Fatalf("expected pid 12345, got %d ok=%v", pid, ok)
	}

	if err := os.WriteFile(path, []byte("junk"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := readPidFile(path); ok {
		t.Fatalf("junk pid file must not yield a pid")
	}
}

func TestRecoverOrphans_RemovesOldDirs(t *testing.T) {
	root := t.TempDir()

	oldDir := filepath.Join(root, constants.DataDirPrefix+"old")
	if err := os.MkdirAll(oldDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	past := time.Now().Add(-2 * constants.OrphanAgeThreshold)
	if err := os.Chtimes(oldDir, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	freshDir := filepath.Join(root, constants.DataDirPrefix+"fresh")
	if err := os.MkdirAll(freshDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	unrelated := filepath.Join(root, "someone-elses-dir")
	if err := os.MkdirAll(unrelated, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Chtimes(unrelated, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	RecoverOrphans(root)

	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("old orphan dir must be removed")
	}
	if _, err := os.Stat(freshDir); err != nil {
		t.Fatalf("fresh dir must survive: %v", err)
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatalf("unrelated dir must survive: %v", err)
	}
}

func TestRecoverOrphans_MissingRoot(t *testing.T) {
	RecoverOrphans(filepath.Join(t.TempDir(), "does-not-exist"))
}

func TestCleanup_RemovesAutoDirOnly(t *testing.T) {
	// Caller-supplied data dirs survive Cleanup.
	dir := t.TempDir()
	s := New(Options{DataDir: dir})
	s.dataDir = dir
	s.state = StateStopped
	s.Cleanup(t.Context())
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("caller-supplied data dir must not be deleted: %v", err)
	}

	auto := filepath.Join(t.TempDir(), "auto")
	if err := os.MkdirAll(auto, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	s2 := New(Options{})
	s2.dataDir = auto
	s2.autoDir = true
	s2.state = StateStopped
	s2.Cleanup(t.Context())
	if _, err := os.Stat(auto); !os.IsNotExist(err) {
		t.Fatalf("auto-generated data dir must be deleted")
	}
	if s2.State() != StateCleanedUp {
		t.Fatalf("expected cleaned-up state, got %s", s2.State())
	}
}
