package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/loykin/dumplift/internal/catalog"
	"github.com/loykin/dumplift/internal/common"
)

// State tracks one orchestrator run.
type State int

const (
	StateNotStarted State = iota
	StatePreValidating
	StateApplying
	StatePostValidating
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StatePreValidating:
		return "pre-validating"
	case StateApplying:
		return "applying"
	case StatePostValidating:
		return "post-validating"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ScriptStatus is the outcome class of a single script.
type ScriptStatus string

const (
	ScriptApplied ScriptStatus = "applied"
	ScriptSkipped ScriptStatus = "skipped"
	ScriptFailed  ScriptStatus = "failed"
)

// ScriptOutcome records what happened to one catalog script.
type ScriptOutcome struct {
	ID       string
	Name     string
	Status   ScriptStatus
	Duration time.Duration
	Error    string
}

// Result aggregates one orchestrator run.
type Result struct {
	Applied  []string
	Outcomes []ScriptOutcome
	Warnings []string
}

// DB is the connection surface the orchestrator needs. *sql.DB satisfies it.
type DB interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

const versionMarkerQuery = `SELECT value FROM ir_config_parameter WHERE key = 'schema_version'`

// Orchestrator drives pre-validation, ordered script execution and
// post-validation against one live connection.
type Orchestrator struct {
	state State
	log   *common.Logger
}

// New returns an orchestrator in the NotStarted state.
func New() *Orchestrator {
	return &Orchestrator{log: common.GetLogger().WithComponent("orchestrator")}
}

// State returns the current run state.
func (o *Orchestrator) State() State { return o.state }

// VersionMarker reads the schema version marker row. ok is false when no
// marker row exists.
func VersionMarker(ctx context.Context, db DB) (version string, ok bool, err error) {
	err = db.QueryRowContext(ctx, versionMarkerQuery).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read version marker: %w", err)
	}
	return version, true, nil
}

// DetectPath maps the database's version marker to a registered migration
// path. A missing marker or unrecognized prefix yields nil; the caller must
// then fail or require an explicit selection.
func DetectPath(ctx context.Context, db DB) (*catalog.Path, string, error) {
	version, ok, err := VersionMarker(ctx, db)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", nil
	}
	return catalog.PathForVersion(version), version, nil
}

// Run executes the full pre-validate / apply / post-validate sequence for
// one path. The returned Result is populated as far as the run got, even on
// error.
func (o *Orchestrator) Run(ctx context.Context, db DB, path *catalog.Path) (*Result, error) {
	res := &Result{}

	o.state = StatePreValidating
	if err := o.preValidate(ctx, db, path, res); err != nil {
		o.state = StateFailed
		return res, err
	}

	o.state = StateApplying
	if err := o.apply(ctx, db, path, res); err != nil {
		o.state = StateFailed
		return res, err
	}

	o.state = StatePostValidating
	o.postValidate(ctx, db, path, res)

	o.state = StateSucceeded
	return res, nil
}

// preValidate enforces the compatibility gate before anything mutates.
func (o *Orchestrator) preValidate(ctx context.Context, db DB, path *catalog.Path, res *Result) error {
	var missing []string
	for _, table := range path.RequiredTables {
		ok, err := tableExists(ctx, db, table)
		if err != nil {
			return fmt.Errorf("probe table %s: %w", table, err)
		}
		if !ok {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return &PreValidationError{PathID: path.ID, MissingTables: missing}
	}

	version, ok, err := VersionMarker(ctx, db)
	if err != nil {
		return err
	}
	if ok && !strings.HasPrefix(version, path.SourcePrefix) {
		return &VersionMismatchError{PathID: path.ID, Expected: path.SourcePrefix, Found: version}
	}
	if !ok {
		res.Warnings = append(res.Warnings, "no schema version marker found, proceeding on explicit path selection")
	}

	if n := o.pendingModuleCount(ctx, db); n > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%d modules have pending install/upgrade/removal state", n))
	}
	return nil
}

func (o *Orchestrator) pendingModuleCount(ctx context.Context, db DB) int {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM ir_module_module WHERE state IN ('to install', 'to upgrade', 'to remove')`).Scan(&n)
	if err != nil {
		o.log.Warn("pending module check failed", "error", err)
		return 0
	}
	return n
}

// apply runs every script in ascending catalog order, each inside its own
// transaction. A pre-check returning false skips the script with no
// mutation; a post-check returning false or any execution error aborts the
// whole path. Earlier commits are not rolled back.
func (o *Orchestrator) apply(ctx context.Context, db DB, path *catalog.Path, res *Result) error {
	for _, script := range path.Scripts() {
		outcome, err := o.applyOne(ctx, db, script)
		res.Outcomes = append(res.Outcomes, outcome)
		if err != nil {
			return err
		}
		if outcome.Status == ScriptApplied {
			res.Applied = append(res.Applied, script.ID)
		}
	}
	return nil
}

func (o *Orchestrator) applyOne(ctx context.Context, db DB, script catalog.Script) (ScriptOutcome, error) {
	log := o.log.WithScript(script.ID)
	start := time.Now()
	outcome := ScriptOutcome{ID: script.ID, Name: script.Name}

	fail := func(err error) (ScriptOutcome, error) {
		outcome.Status = ScriptFailed
		outcome.Duration = time.Since(start)
		outcome.Error = err.Error()
		return outcome, &ScriptExecutionError{ScriptID: script.ID, Err: err}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fail(fmt.Errorf("begin transaction: %w", err))
	}

	if script.PreCheck != "" {
		ok, err := evalPredicate(ctx, tx, script.PreCheck)
		if err != nil {
			_ = tx.Rollback()
			return fail(fmt.Errorf("pre-check: %w", err))
		}
		if !ok {
			_ = tx.Rollback()
			outcome.Status = ScriptSkipped
			outcome.Duration = time.Since(start)
			log.Info("script skipped by pre-check")
			return outcome, nil
		}
	}

	if _, err := tx.ExecContext(ctx, script.SQL); err != nil {
		_ = tx.Rollback()
		return fail(err)
	}

	if script.PostCheck != "" {
		ok, err := evalPredicate(ctx, tx, script.PostCheck)
		if err != nil {
			_ = tx.Rollback()
			return fail(fmt.Errorf("post-check: %w", err))
		}
		if !ok {
			_ = tx.Rollback()
			return fail(fmt.Errorf("post-check returned false"))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}

	outcome.Status = ScriptApplied
	outcome.Duration = time.Since(start)
	log.Info("script applied", "duration", outcome.Duration)
	return outcome, nil
}

// postValidate surfaces catalog bugs and data oddities as warnings. Nothing
// here fails an otherwise successful migration.
func (o *Orchestrator) postValidate(ctx context.Context, db DB, path *catalog.Path, res *Result) {
	version, ok, err := VersionMarker(ctx, db)
	switch {
	case err != nil:
		res.Warnings = append(res.Warnings, fmt.Sprintf("post-validation: version marker unreadable: %v", err))
	case !ok:
		res.Warnings = append(res.Warnings, "post-validation: version marker missing after migration")
	case version != path.TargetVersion:
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("post-validation: version marker is %q, expected %q (catalog bug?)", version, path.TargetVersion))
	}

	o.spotCheckIntegrity(ctx, db, res)
}

var integritySpotChecks = []struct {
	name  string
	query string
}{
	{
		name: "users without partner record",
		query: `SELECT count(*) FROM res_users u
  LEFT JOIN res_partner p ON p.id = u.partner_id
 WHERE u.partner_id IS NOT NULL AND p.id IS NULL`,
	},
	{
		name: "companies without partner record",
		query: `SELECT count(*) FROM res_company c
  LEFT JOIN res_partner p ON p.id = c.partner_id
 WHERE c.partner_id IS NOT NULL AND p.id IS NULL`,
	},
}

func (o *Orchestrator) spotCheckIntegrity(ctx context.Context, db DB, res *Result) {
	for _, check := range integritySpotChecks {
		var n int
		if err := db.QueryRowContext(ctx, check.query).Scan(&n); err != nil {
			o.log.Warn("integrity spot check failed", "check", check.name, "error", err)
			continue
		}
		if n > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("integrity: %d %s", n, check.name))
		}
	}
}

func evalPredicate(ctx context.Context, tx *sql.Tx, query string) (bool, error) {
	var ok bool
	if err := tx.QueryRowContext(ctx, query).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// tableExists probes by selecting from the table instead of consulting
// catalogs, which keeps the probe portable across engines.
func tableExists(ctx context.Context, db DB, table string) (bool, error) {
	err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %q LIMIT 1`, table)).Scan(new(int))
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if isUndefinedTable(err) {
		return false, nil
	}
	// Anything else (closed connection, transport failure) must not be
	// mistaken for a missing table.
	return false, err
}

func isUndefinedTable(err error) bool {
	// 42P01 is SQLSTATE undefined_table.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "does not exist")
}
