package dbops

import (
	"fmt"
	"strings"
)

// DatabaseCreateError wraps a failed create-database administrative command.
type DatabaseCreateError struct {
	Name string
	Err  error
}

func (e *DatabaseCreateError) Error() string {
	return fmt.Sprintf("create database %q: %v", e.Name, e.Err)
}

func (e *DatabaseCreateError) Unwrap() error { return e.Err }

// ImportVerificationError means the bulk load subprocess finished but the
// resulting database is missing tables no usable import could lack.
type ImportVerificationError struct {
	Missing []string
}

func (e *ImportVerificationError) Error() string {
	return fmt.Sprintf("dump import incomplete, essential tables missing: %s", strings.Join(e.Missing, ", "))
}

// ExportError wraps a failed bulk export with the tool's error stream.
type ExportError struct {
	Stderr string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("dump export failed: %v\n%s", e.Err, e.Stderr)
}

func (e *ExportError) Unwrap() error { return e.Err }
