package dbops

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/loykin/dumplift/internal/common"
	"github.com/loykin/dumplift/internal/pgtool"
)

// Admin identifies a reachable server plus the maintenance database used for
// administrative commands.
type Admin struct {
	Host     string
	Port     int
	User     string
	Password string
	AdminDB  string
}

// DSN renders a pgx connection string for the given database.
func (a Admin) DSN(dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		a.Host, a.Port, a.User, a.Password, dbname)
}

// Handle names one ephemeral database on a server.
type Handle struct {
	Admin
	Name string
}

// Connect opens a database/sql connection to the handle's database.
func (h Handle) Connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("pgx", h.DSN(h.Name))
	if err != nil {
		return nil, fmt.Errorf("open connection to %s: %w", h.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", h.Name, err)
	}
	return db, nil
}

// EssentialTables must exist after a dump import for it to count as
// complete. The loader's exit code alone is not trusted: a partial import
// can still exit with only warnings.
var EssentialTables = []string{
	"res_partner",
	"res_users",
	"ir_module_module",
	"ir_config_parameter",
}

// Bridge issues administrative commands and bulk data transfer against a
// server by invoking the PostgreSQL client tools.
type Bridge struct {
	Resolver    pgtool.Resolver
	ToolTimeout time.Duration
	log         *common.Logger
}

// NewBridge builds a bridge resolving client tools from binDir (or
// conventional locations when empty).
func NewBridge(binDir string, toolTimeout time.Duration) *Bridge {
	return &Bridge{
		Resolver:    pgtool.Resolver{BinDir: binDir},
		ToolTimeout: toolTimeout,
		log:         common.GetLogger().WithComponent("dbops"),
	}
}

// GenerateDatabaseName returns a collision-safe, SQL-identifier-safe name.
func GenerateDatabaseName() string {
	suffix := strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	return fmt.Sprintf("dumplift_%d_%s", time.Now().Unix(), suffix)
}

// CreateDatabase creates a fresh, uniquely named database on the server.
func (b *Bridge) CreateDatabase(ctx context.Context, admin Admin) (Handle, error) {
	name := GenerateDatabaseName()
	b.log.Debug("opening admin connection", "dsn", common.MaskDSN(admin.DSN(admin.AdminDB)))

	db, err := sql.Open("pgx", admin.DSN(admin.AdminDB))
	if err != nil {
		return Handle{}, &DatabaseCreateError{Name: name, Err: err}
	}
	defer func() { _ = db.Close() }()

	// Identifier built from timestamp and hex suffix only, safe to splice.
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE %q ENCODING 'UTF8' TEMPLATE template0`, name)); err != nil {
		return Handle{}, &DatabaseCreateError{Name: name, Err: err}
	}
	b.log.Info("database created", "name", name)
	return Handle{Admin: admin, Name: name}, nil
}

// LoadDump replays a plain-text dump into the handle's database with psql.
// Script-level errors are tolerated (producer dumps routinely carry
// duplicate-constraint noise) but summarized as a warning, and completeness
// is verified independently against EssentialTables afterward.
func (b *Bridge) LoadDump(ctx context.Context, dumpPath string, h Handle) error {
	cmd := pgtool.Command{
		Bin: b.Resolver.Path(pgtool.ToolPsql),
		Args: []string{
			"-h", h.Host,
			"-p", strconv.Itoa(h.Port),
			"-U", h.User,
			"-d", h.Name,
			"-v", "ON_ERROR_STOP=0",
			"-q",
			"-f", dumpPath,
		},
		Env:     []string{"PGPASSWORD=" + h.Password},
		Timeout: b.ToolTimeout,
	}
	res, err := cmd.Run(ctx)
	if err != nil {
		return fmt.Errorf("psql load: %w", err)
	}
	if n := countErrorLines(res.Stderr); n > 0 {
		b.log.Warn("dump load reported script-level errors", "count", n, "database", h.Name)
	}
	if res.ExitCode != 0 {
		b.log.Warn("psql exited non-zero, verifying import anyway", "code", res.ExitCode)
	}

	missing, err := b.missingTables(ctx, h, EssentialTables)
	if err != nil {
		return fmt.Errorf("verify import: %w", err)
	}
	if len(missing) > 0 {
		return &ImportVerificationError{Missing: missing}
	}
	b.log.Info("dump loaded", "database", h.Name, "duration", res.Duration)
	return nil
}

func countErrorLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, "ERROR:") {
			n++
		}
	}
	return n
}

func (b *Bridge) missingTables(ctx context.Context, h Handle, tables []string) ([]string, error) {
	db, err := h.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var missing []string
	for _, table := range tables {
		var reg sql.NullString
		if err := db.QueryRowContext(ctx, `SELECT to_regclass('public.'||$1)::text`, table).Scan(&reg); err != nil {
			return nil, fmt.Errorf("probe table %s: %w", table, err)
		}
		if !reg.Valid {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

// ExportDump writes the handle's database back out as a plain-text dump.
func (b *Bridge) ExportDump(ctx context.Context, h Handle, outputPath string) error {
	cmd := pgtool.Command{
		Bin: b.Resolver.Path(pgtool.ToolPgDump),
		Args: []string{
			"-h", h.Host,
			"-p", strconv.Itoa(h.Port),
			"-U", h.User,
			"--format=plain",
			"--no-owner",
			"--no-privileges",
			"-f", outputPath,
			h.Name,
		},
		Env:     []string{"PGPASSWORD=" + h.Password},
		Timeout: b.ToolTimeout,
	}
	res, err := cmd.Run(ctx)
	if err != nil {
		return &ExportError{Stderr: res.Stderr, Err: err}
	}
	if res.ExitCode != 0 {
		return &ExportError{Stderr: res.Stderr, Err: fmt.Errorf("pg_dump exited with code %d", res.ExitCode)}
	}
	b.log.Info("dump exported", "database", h.Name, "path", outputPath, "duration", res.Duration)
	return nil
}

// DropDatabase terminates live backends bound to the database and drops it.
// Runs during teardown, so failures are logged and never returned.
func (b *Bridge) DropDatabase(ctx context.Context, h Handle) {
	b.log.Debug("opening admin connection", "dsn", common.MaskDSN(h.DSN(h.AdminDB)))
	db, err := sql.Open("pgx", h.DSN(h.AdminDB))
	if err != nil {
		b.log.Warn("drop database: admin connection failed", "database", h.Name, "error", err)
		return
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx,
		`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`,
		h.Name); err != nil {
		b.log.Warn("terminating backends failed", "database", h.Name, "error", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, h.Name)); err != nil {
		b.log.Warn("drop database failed", "database", h.Name, "error", err)
		return
	}
	b.log.Info("database dropped", "name", h.Name)
}
