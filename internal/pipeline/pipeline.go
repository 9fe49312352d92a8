// Package pipeline is the top-level entry point of the migration engine. It
// sequences extraction, database setup, migration and export, owns overall
// error handling and guarantees teardown on every path.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/dumplift/internal/archive"
	"github.com/loykin/dumplift/internal/catalog"
	"github.com/loykin/dumplift/internal/common"
	"github.com/loykin/dumplift/internal/constants"
	"github.com/loykin/dumplift/internal/dbops"
	"github.com/loykin/dumplift/internal/dbserver"
	"github.com/loykin/dumplift/internal/history"
	"github.com/loykin/dumplift/internal/orchestrator"
)

// Coordinator runs the whole migration pipeline. One Coordinator serves one
// run; the scratch directory and the ephemeral database are exclusively
// owned and never shared between runs.
type Coordinator struct {
	cfg Config
	log *common.Logger
}

// New builds a coordinator for one run.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg: cfg.withDefaults(),
		log: common.GetLogger().WithComponent("pipeline"),
	}
}

// Run executes the pipeline. It never panics or returns an error past this
// boundary: every failure is captured into the Result's error list with its
// originating phase. The cancellation context is advisory and checked only
// at phase boundaries; it cannot interrupt a subprocess already running.
func (c *Coordinator) Run(ctx context.Context) *Result {
	res := &Result{Report: &Report{}}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		// Failed runs still get a best-effort report from whatever was
		// collected before the failure.
		if c.cfg.OutputPath != "" {
			if err := WriteReport(ReportPath(c.cfg.OutputPath), res); err != nil {
				res.Warnings = append(res.Warnings, err.Error())
			}
		}
		c.recordHistory(start, res)
	}()

	var (
		scratch string
		server  *dbserver.Server
		bridge  *dbops.Bridge
		handle  dbops.Handle
		created bool
	)

	// Teardown runs exactly once no matter which phase failed, with its own
	// context so a canceled run still cleans up. Its failures are logged by
	// the components, never escalated over the original error.
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if created && server == nil {
			bridge.DropDatabase(tctx, handle)
		}
		if server != nil {
			server.Cleanup(tctx)
		}
		if c.cfg.KeepScratch {
			c.log.Info("retaining scratch directory", "dir", scratch)
		} else {
			archive.Cleanup(scratch)
		}
	}()

	phaseStart := time.Now()
	timePhase := func(p Phase) {
		res.Report.PhaseTimings = append(res.Report.PhaseTimings, PhaseTiming{Phase: p, Duration: time.Since(phaseStart)})
		phaseStart = time.Now()
	}

	// Phase 1: extraction.
	c.emit(PhaseExtraction, 0, "creating scratch directory")
	scratch, err := archive.CreateScratchDir(c.cfg.WorkDir)
	if err != nil {
		res.recordError(PhaseExtraction, err)
		return res
	}
	c.emit(PhaseExtraction, 5, "extracting archive")
	ectx, err := archive.Extract(c.cfg.InputPath, scratch)
	if err != nil {
		res.recordError(PhaseExtraction, err)
		return res
	}
	res.SourceVersion = ectx.Manifest.Version
	timePhase(PhaseExtraction)
	c.emit(PhaseExtraction, 25, "archive extracted")

	if err := ctx.Err(); err != nil {
		res.recordError(PhaseDatabaseSetup, err)
		return res
	}

	// Phase 2: database setup.
	bridge = dbops.NewBridge(c.cfg.BinDir, c.cfg.ToolTimeout)
	var admin dbops.Admin
	if c.cfg.External != nil {
		admin = dbops.Admin{
			Host:     c.cfg.External.Host,
			Port:     c.cfg.External.Port,
			User:     c.cfg.External.User,
			Password: c.cfg.External.Password,
			AdminDB:  c.cfg.External.AdminDB,
		}
		c.emit(PhaseDatabaseSetup, 30, "using external database server")
	} else {
		c.emit(PhaseDatabaseSetup, 28, "initializing embedded database server")
		server = dbserver.New(dbserver.Options{BinDir: c.cfg.BinDir, BaseDir: c.cfg.WorkDir})
		if err := server.Init(ctx); err != nil {
			res.recordError(PhaseDatabaseSetup, err)
			return res
		}
		c.emit(PhaseDatabaseSetup, 32, "starting embedded database server")
		if err := server.Start(ctx); err != nil {
			res.recordError(PhaseDatabaseSetup, err)
			return res
		}
		info, err := server.ConnInfo()
		if err != nil {
			res.recordError(PhaseDatabaseSetup, err)
			return res
		}
		admin = dbops.Admin{
			Host:     info.Host,
			Port:     info.Port,
			User:     info.User,
			Password: info.Password,
			AdminDB:  constants.DefaultAdminDB,
		}
	}

	c.emit(PhaseDatabaseSetup, 35, "creating ephemeral database")
	handle, err = bridge.CreateDatabase(ctx, admin)
	if err != nil {
		res.recordError(PhaseDatabaseSetup, err)
		return res
	}
	created = true

	c.emit(PhaseDatabaseSetup, 40, "loading dump")
	if err := bridge.LoadDump(ctx, ectx.DumpPath, handle); err != nil {
		res.recordError(PhaseDatabaseSetup, err)
		return res
	}
	timePhase(PhaseDatabaseSetup)
	c.emit(PhaseDatabaseSetup, 50, "dump loaded")

	if err := ctx.Err(); err != nil {
		res.recordError(PhaseMigration, err)
		return res
	}

	// Phase 3: migration.
	db, err := handle.Connect(ctx)
	if err != nil {
		res.recordError(PhaseMigration, err)
		return res
	}
	closeDB := func() {
		if db != nil {
			_ = db.Close()
			db = nil
		}
	}
	defer closeDB()

	path, detected, err := c.selectPath(ctx, db)
	if err != nil {
		res.recordError(PhaseMigration, err)
		return res
	}
	if detected != "" {
		res.SourceVersion = detected
	}
	res.TargetVersion = path.TargetVersion

	c.emit(PhaseMigration, 55, fmt.Sprintf("applying path %s", path.ID))
	orch := orchestrator.New()
	orchRes, err := orch.Run(ctx, db, path)
	if orchRes != nil {
		res.MigrationsApplied = orchRes.Applied
		res.Warnings = append(res.Warnings, orchRes.Warnings...)
		res.Report.Scripts = orchRes.Outcomes
	}
	if err != nil {
		res.recordError(PhaseMigration, err)
		return res
	}

	c.emit(PhaseMigration, 75, "collecting statistics")
	res.Report.Stats = bridge.CollectStatistics(ctx, db)
	closeDB()
	timePhase(PhaseMigration)
	c.emit(PhaseMigration, 80, "migration complete")

	if err := ctx.Err(); err != nil {
		res.recordError(PhaseExport, err)
		return res
	}

	// Phase 4: export and repackaging.
	c.emit(PhaseExport, 82, "exporting migrated dump")
	exportPath := filepath.Join(scratch, "dump.migrated.sql")
	if err := bridge.ExportDump(ctx, handle, exportPath); err != nil {
		res.recordError(PhaseExport, err)
		return res
	}
	ectx.DumpPath = exportPath

	c.emit(PhaseExport, 90, "updating manifest")
	target := path.TargetVersion
	if _, err := archive.UpdateManifest(ectx.ManifestPath, archive.ManifestPatch{Version: &target}); err != nil {
		res.recordError(PhaseExport, err)
		return res
	}

	c.emit(PhaseExport, 93, "packing output archive")
	if err := archive.Pack(ectx, c.cfg.OutputPath); err != nil {
		res.recordError(PhaseExport, err)
		return res
	}
	timePhase(PhaseExport)

	res.Success = true
	c.emit(PhaseExport, 100, "migration finished")
	return res
}

// selectPath honors an explicit path selection, otherwise auto-detects from
// the database's version marker.
func (c *Coordinator) selectPath(ctx context.Context, db orchestrator.DB) (*catalog.Path, string, error) {
	if c.cfg.PathID != "" {
		p, ok := catalog.PathByID(c.cfg.PathID)
		if !ok {
			return nil, "", fmt.Errorf("unknown migration path %q", c.cfg.PathID)
		}
		version, _, err := orchestrator.VersionMarker(ctx, db)
		if err != nil {
			return nil, "", err
		}
		return p, version, nil
	}
	p, version, err := orchestrator.DetectPath(ctx, db)
	if err != nil {
		return nil, "", err
	}
	if p == nil {
		return nil, "", fmt.Errorf("could not detect a migration path from version marker %q, select one explicitly", version)
	}
	return p, version, nil
}

// ReportPath derives the report file path from the output archive path.
func ReportPath(outputPath string) string {
	base := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
	return base + constants.ReportSuffix
}

func (c *Coordinator) recordHistory(start time.Time, res *Result) {
	if c.cfg.HistoryPath == "" {
		return
	}
	st, err := history.Open(c.cfg.HistoryPath)
	if err != nil {
		c.log.Warn("history store unavailable", "error", err)
		return
	}
	defer func() { _ = st.Close() }()

	run := history.Run{
		StartedAt:      start,
		Duration:       res.Duration,
		SourceVersion:  res.SourceVersion,
		TargetVersion:  res.TargetVersion,
		Success:        res.Success,
		ScriptsApplied: res.MigrationsApplied,
	}
	if len(res.Errors) > 0 {
		run.Error = res.Errors[0].Message
	}
	if err := st.RecordRun(run); err != nil {
		c.log.Warn("could not record run history", "error", err)
	}
}
