package pipeline

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/dumplift/internal/pgtool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// A generation 16 database small enough to load in a blink but shaped so
// every script of the 16-to-17 catalog finds its pre-checks satisfied.
const seedDump16 = `
CREATE TABLE res_partner (id serial PRIMARY KEY, name text, complete_name text, company_id integer, is_company boolean DEFAULT false);
CREATE TABLE res_users (id serial PRIMARY KEY, login text, partner_id integer, share boolean);
CREATE TABLE res_company (id serial PRIMARY KEY, name text, partner_id integer);
CREATE TABLE ir_module_module (id serial PRIMARY KEY, name text, state text, latest_version text);
CREATE TABLE ir_config_parameter (id serial PRIMARY KEY, key text UNIQUE NOT NULL, value text NOT NULL);
CREATE TABLE ir_model_data (id serial PRIMARY KEY, module text, name text, model text, res_id integer);
CREATE TABLE ir_attachment (id serial PRIMARY KEY, name text, store_fname text, url text);
CREATE TABLE ir_translation (id serial PRIMARY KEY, src text, value text);
CREATE TABLE mail_channel (id serial PRIMARY KEY, name text);
CREATE TABLE mail_channel_member (id serial PRIMARY KEY, channel_id integer, partner_id integer);
INSERT INTO res_partner (name, is_company, company_id) VALUES ('Acme', true, 1), ('Alice', false, NULL);
INSERT INTO res_company (name, partner_id) VALUES ('Acme', NULL);
INSERT INTO res_users (login, partner_id, share) VALUES ('alice', 2, NULL);
INSERT INTO ir_module_module (name, state, latest_version) VALUES ('base', 'installed', '16.0.1.0'), ('mail', 'to upgrade', '16.0.1.0');
INSERT INTO ir_config_parameter (key, value) VALUES ('schema_version', '16.0');
INSERT INTO ir_model_data (module, name, model, res_id) VALUES ('mail', 'channel_general', 'mail.channel', 1);
INSERT INTO mail_channel (name) VALUES ('general');
INSERT INTO mail_channel_member (channel_id, partner_id) VALUES (1, 2);
`

const seedManifest16 = `{"db_name": "prod", "version": "16.0", "modules": ["base", "mail"], "producer": {"tool": "backup-ng", "build": 7}}`

// requireClientTools skips where the PostgreSQL client binaries the pipeline
// shells out to are not installed.
func requireClientTools(t *testing.T) {
	t.Helper()
	r := pgtool.Resolver{}
	for _, tool := range []string{pgtool.ToolPsql, pgtool.ToolPgDump} {
		if r.Path(tool) != tool {
			continue
		}
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("skipping: %s not installed on this host", tool)
		}
	}
}

// startPostgres spins up a disposable server for end-to-end coverage.
// Skipped where containers are unavailable.
func startPostgres(t *testing.T) (*ExternalServer, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	req := tc.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		),
	}
	pg, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		cancel()
		// Skip on CI envs that cannot run containers, rather than failing whole suite
		t.Skipf("skipping Postgres container test: %v", err)
		return nil, nil
	}

	host, err := pg.Host(ctx)
	if err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		t.Fatalf("container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		t.Fatalf("container port: %v", err)
	}

	ext := &ExternalServer{Host: host, Port: port.Int(), User: "test", Password: "test", AdminDB: "postgres"}
	if err := waitForServer(ext, 30*time.Second); err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		t.Fatalf("postgres not ready: %v", err)
	}
	return ext, func() {
		_ = pg.Terminate(ctx)
		cancel()
	}
}

func waitForServer(ext *ExternalServer, timeout time.Duration) error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		ext.Host, ext.Port, ext.User, ext.Password, ext.AdminDB)
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			pingErr := db.Ping()
			_ = db.Close()
			if pingErr == nil {
				return nil
			}
			lastErr = pingErr
		} else {
			lastErr = err
		}
		time.Sleep(500 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for postgres")
	}
	return lastErr
}

func TestRun_Generation16Archive_EndToEnd(t *testing.T) {
	requireClientTools(t)
	ext, stop := startPostgres(t)
	defer stop()

	input := writeArchive(t, map[string]string{
		"dump.sql":          seedDump16,
		"manifest.json":     seedManifest16,
		"filestore/00/aabb": "blob-data",
	})
	output := filepath.Join(t.TempDir(), "out.zip")

	var events []Event
	cfg := Config{
		InputPath:   input,
		OutputPath:  output,
		WorkDir:     t.TempDir(),
		External:    ext,
		ToolTimeout: 2 * time.Minute,
		Observer:    func(e Event) { events = append(events, e) },
	}

	res := New(cfg).Run(context.Background())
	if !res.Success {
		t.Fatalf("migration failed: %+v", res.Errors)
	}
	if res.SourceVersion != "16.0" || res.TargetVersion != "17.0" {
		t.Fatalf("unexpected versions: %s -> %s", res.SourceVersion, res.TargetVersion)
	}
	if len(res.MigrationsApplied) != 15 {
		t.Fatalf("expected all 15 catalog scripts applied, got %d: %v",
			len(res.MigrationsApplied), res.MigrationsApplied)
	}

	// The repackaged manifest declares the new generation and keeps the
	// producer's own metadata.
	manifest := readZipMember(t, output, "manifest.json")
	var doc map[string]any
	if err := json.Unmarshal(manifest, &doc); err != nil {
		t.Fatalf("parse output manifest: %v", err)
	}
	if doc["version"] != "17.0" {
		t.Fatalf("manifest version not bumped: %v", doc["version"])
	}
	if doc["producer"] == nil {
		t.Fatalf("producer metadata lost on repack: %v", doc)
	}

	// The filestore rides along untouched.
	if got := string(readZipMember(t, output, "filestore/00/aabb")); got != "blob-data" {
		t.Fatalf("filestore content changed: %q", got)
	}

	// The migrated dump reflects the catalog's structural changes.
	dump := string(readZipMember(t, output, "dump.sql"))
	if !strings.Contains(dump, "discuss_channel") || strings.Contains(dump, "CREATE TABLE public.ir_translation") {
		t.Fatalf("exported dump does not reflect migration")
	}

	report, err := os.ReadFile(ReportPath(output))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(report), "Status: Success") {
		t.Fatalf("report missing success status:\n%s", report)
	}

	// Progress covered every phase and finished at 100.
	phases := map[Phase]bool{}
	for _, e := range events {
		phases[e.Phase] = true
	}
	for _, p := range []Phase{PhaseExtraction, PhaseDatabaseSetup, PhaseMigration, PhaseExport} {
		if !phases[p] {
			t.Fatalf("no progress event for phase %s", p)
		}
	}
	if last := events[len(events)-1]; last.Percent != 100 {
		t.Fatalf("run did not report completion: %+v", last)
	}
}

func readZipMember(t *testing.T, archivePath, name string) []byte {
	t.Helper()
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("open %s: %v", archivePath, err)
	}
	defer func() { _ = r.Close() }()
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open member %s: %v", name, err)
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read member %s: %v", name, err)
		}
		return data
	}
	t.Fatalf("member %s not found in %s", name, archivePath)
	return nil
}
