package pipeline

import (
	"errors"
	"time"

	"github.com/loykin/dumplift/internal/dbops"
	"github.com/loykin/dumplift/internal/dbserver"
	"github.com/loykin/dumplift/internal/orchestrator"
)

// PhaseError is one structured, phase-tagged failure. Recoverable marks
// failures that occurred before any mutation and are plausibly transient
// (readiness timeouts, create-database races); everything after the first
// mutation is final for the run.
type PhaseError struct {
	Phase       Phase
	Message     string
	Recoverable bool
}

// Report is the success-side detail block: per-phase timings, per-script
// outcomes and post-migration statistics.
type Report struct {
	PhaseTimings []PhaseTiming
	Scripts      []orchestrator.ScriptOutcome
	Stats        dbops.Stats
}

// PhaseTiming records the wall-clock spent in one phase.
type PhaseTiming struct {
	Phase    Phase
	Duration time.Duration
}

// Result is the single value a pipeline run produces. The coordinator never
// raises past its own boundary; failures land here.
type Result struct {
	Success           bool
	SourceVersion     string
	TargetVersion     string
	MigrationsApplied []string
	Errors            []PhaseError
	Warnings          []string
	Duration          time.Duration
	Report            *Report
}

// recordError classifies err into a PhaseError and appends it.
func (r *Result) recordError(phase Phase, err error) {
	r.Errors = append(r.Errors, PhaseError{
		Phase:       phase,
		Message:     err.Error(),
		Recoverable: isRecoverable(err),
	})
}

func isRecoverable(err error) bool {
	var readiness *dbserver.ReadinessTimeoutError
	var create *dbops.DatabaseCreateError
	return errors.As(err, &readiness) || errors.As(err, &create)
}
