package constants

import "time"

// Database Constants
const (
	// Embedded server port range probed during Init
	EmbeddedPortRangeStart = 15432
	EmbeddedPortRangeEnd   = 15532

	// Default connection parameters for an external server
	DefaultPostgresHost = "localhost"
	DefaultPostgresPort = 5432
	DefaultAdminDB      = "postgres"

	// Superuser name for embedded instances
	EmbeddedSuperuser = "dumplift"
)

// Archive member names
const (
	DumpFileName     = "dump.sql"
	ManifestFileName = "manifest.json"
	FilestoreDirName = "filestore"
)

// Time and Duration Constants
const (
	// Readiness polling after pg_ctl start
	DefaultReadinessTimeout  = 60 * time.Second
	DefaultReadinessInterval = 250 * time.Millisecond

	// Graceful shutdown budget before escalating to immediate mode
	DefaultStopTimeout = 30 * time.Second

	// External client tool budget (psql load, pg_dump export)
	DefaultToolTimeout = 30 * time.Minute

	// Orphaned data directories older than this are force-deleted
	OrphanAgeThreshold = time.Hour
)

// Naming Constants
const (
	// Prefix shared by scratch directories and embedded data directories,
	// also what the orphan scan greps the temp root for.
	ScratchDirPrefix = "dumplift-"
	DataDirPrefix    = "dumplift-pg-"

	// PID marker written into an embedded data directory
	PidFileName = "dumplift.pid"
)

// Report Constants
const (
	ReportSuffix = "-report.txt"
)
