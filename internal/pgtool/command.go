package pgtool

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"
)

// Result captures everything a caller may need to report about one external
// tool invocation. Stdout/stderr are retained in full; failure paths embed
// them into errors instead of pointing at a vanished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Command is a single prepared invocation of a PostgreSQL client tool.
type Command struct {
	Bin     string
	Args    []string
	Env     []string // appended to the inherited environment
	Stdin   io.Reader
	Timeout time.Duration
}

// Run executes the command and always returns a populated Result, even when
// err is non-nil. A non-zero exit is reported through Result.ExitCode with a
// nil error; err is reserved for spawn failures, timeouts and cancellation.
func (c Command) Run(ctx context.Context) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Bin, c.Args...) // #nosec G204 -- binary path resolved by Resolver, args built by typed builders
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	if c.Stdin != nil {
		cmd.Stdin = c.Stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, nil
		}
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}
