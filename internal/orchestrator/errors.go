package orchestrator

import (
	"fmt"
	"strings"
)

// PreValidationError aggregates every mandatory table missing from the
// database, so one failed run reports the full gap instead of the first hit.
type PreValidationError struct {
	PathID        string
	MissingTables []string
}

func (e *PreValidationError) Error() string {
	return fmt.Sprintf("path %s pre-validation failed, missing tables: %s",
		e.PathID, strings.Join(e.MissingTables, ", "))
}

// VersionMismatchError is the hard stop raised before any mutation when the
// database's version marker does not match the selected path.
type VersionMismatchError struct {
	PathID   string
	Expected string // source prefix
	Found    string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version marker %q does not match path %s (expected prefix %q)",
		e.Found, e.PathID, e.Expected)
}

// ScriptExecutionError aborts the remainder of a path. Scripts already
// committed stay committed; the instance is disposable and a rerun starts
// from a fresh copy of the archive.
type ScriptExecutionError struct {
	ScriptID string
	Err      error
}

func (e *ScriptExecutionError) Error() string {
	return fmt.Sprintf("script %s failed: %v", e.ScriptID, e.Err)
}

func (e *ScriptExecutionError) Unwrap() error { return e.Err }
