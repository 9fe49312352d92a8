package dbserver

import (
	"fmt"
	"time"
)

// InitializationError wraps an initdb failure with the tool's own output.
type InitializationError struct {
	Output string
	Err    error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("database initialization failed: %v\n%s", e.Err, e.Output)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// StartupError wraps a pg_ctl start failure with the server's log tail,
// which is where the actually useful diagnostics land.
type StartupError struct {
	LogTail string
	Err     error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("database server failed to start: %v\n%s", e.Err, e.LogTail)
}

func (e *StartupError) Unwrap() error { return e.Err }

// ReadinessTimeoutError means the start command reported success but the
// server never accepted a TCP connection within the budget.
type ReadinessTimeoutError struct {
	Port    int
	Timeout time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("database server on port %d not ready after %s", e.Port, e.Timeout)
}
