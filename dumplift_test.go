package dumplift

import (
	"context"
	"path/filepath"
	"testing"
)

func TestPaths(t *testing.T) {
	paths := Paths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 registered paths, got %d", len(paths))
	}
	ids := map[string]bool{}
	for _, p := range paths {
		ids[p.ID] = true
	}
	if !ids["16-to-17"] || !ids["17-to-18"] {
		t.Fatalf("unexpected path ids: %v", ids)
	}
}

func TestRun_BadInputReturnsStructuredFailure(t *testing.T) {
	cfg := Config{
		InputPath:  filepath.Join(t.TempDir(), "missing.zip"),
		OutputPath: filepath.Join(t.TempDir(), "out.zip"),
		WorkDir:    t.TempDir(),
	}
	res := Run(context.Background(), cfg)
	if res == nil {
		t.Fatal("expected a result, got nil")
	}
	if res.Success {
		t.Fatal("expected failure for a missing input archive")
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected structured errors")
	}
	if res.Errors[0].Phase != PhaseExtraction {
		t.Fatalf("expected extraction-phase error, got %q", res.Errors[0].Phase)
	}
}

func TestSetLogLevel(t *testing.T) {
	// Must accept any string without panicking.
	SetLogLevel("debug")
	SetLogLevel("bogus")
	SetLogLevel("info")
}
