// Package dumplift migrates a packaged database backup from one schema
// generation to the next by replaying it into a disposable PostgreSQL
// instance, applying the catalog of transformation scripts for the detected
// upgrade path, and repackaging the result.
package dumplift

import (
	"context"
	"os"

	"github.com/loykin/dumplift/internal/catalog"
	"github.com/loykin/dumplift/internal/common"
	"github.com/loykin/dumplift/internal/dbserver"
	"github.com/loykin/dumplift/internal/pipeline"
)

// Re-export commonly used types for public API

// Config is the full configuration of one migration run.
type Config = pipeline.Config

// ExternalServer selects an operator-managed server over the embedded one.
type ExternalServer = pipeline.ExternalServer

// Result is what every run returns, success or not.
type Result = pipeline.Result

// Report is the success-side detail block embedded in Result.
type Report = pipeline.Report

// PhaseError is one structured, phase-tagged failure.
type PhaseError = pipeline.PhaseError

// Event is a progress update; Observer consumes them synchronously.
type (
	Event    = pipeline.Event
	Observer = pipeline.Observer
)

// Phase names of the pipeline's four stages.
const (
	PhaseExtraction    = pipeline.PhaseExtraction
	PhaseDatabaseSetup = pipeline.PhaseDatabaseSetup
	PhaseMigration     = pipeline.PhaseMigration
	PhaseExport        = pipeline.PhaseExport
)

// MigrationPath is a registered upgrade path.
type MigrationPath = catalog.Path

// Paths returns every registered migration path.
func Paths() []*MigrationPath { return catalog.Paths() }

// Run executes one migration pipeline and always returns a structured
// result; it never panics past this boundary.
func Run(ctx context.Context, cfg Config) *Result {
	return pipeline.New(cfg).Run(ctx)
}

// RecoverOrphans terminates and removes ephemeral server leftovers from
// crashed previous runs. Call once at tool startup.
func RecoverOrphans() {
	dbserver.RecoverOrphans(os.TempDir())
}

// Logger is the structured logger used across the module.
type Logger = common.Logger

// SetLogLevel replaces the process-wide default logger.
func SetLogLevel(level string) {
	common.SetDefaultLogger(common.NewLogger(common.ParseLogLevel(level)))
}
