package dbops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres spins up a disposable server for integration coverage of the
// administrative commands. Skipped where containers are unavailable.
func startPostgres(t *testing.T) (Admin, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	// testcontainers panics (rather than returning an error) when no Docker
	// host can be found; route that into the same skip path as other errors.
	defer func() {
		if r := recover(); r != nil {
			cancel()
			t.Skipf("skipping Postgres container test: %v", r)
		}
	}()

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
		return Admin{}, nil
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

	admin := Admin{Host: host, Port: port.Int(), User: "test", Password: "test", AdminDB: "postgres"}
	if err := waitForServer(admin, 30*time.Second); err != nil {
		_ = pg.Terminate(ctx)
		cancel()
		t.Fatalf("postgres not ready: %v", err)
	}
	return admin, func() {
		_ = pg.Terminate(ctx)
		cancel()
	}
}

func waitForServer(admin Admin, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		db, err := sql.Open("pgx", admin.DSN(admin.AdminDB))
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

func TestBridge_CreateVerifyDrop(t *testing.T) {
	admin, stop := startPostgres(t)
	defer stop()
	ctx := context.Background()

	b := NewBridge("", time.Minute)
	h, err := b.CreateDatabase(ctx, admin)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}

	// A freshly created database is missing every essential table.
	missing, err := b.missingTables(ctx, h, EssentialTables)
	if err != nil {
		t.Fatalf("probe tables: %v", err)
	}
	if len(missing) != len(EssentialTables) {
		t.Fatalf("expected all essential tables missing, got %v", missing)
	}

	db, err := h.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE res_partner (id serial PRIMARY KEY, name text)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO res_partner (name) VALUES ('a'), ('b')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	missing, err = b.missingTables(ctx, h, EssentialTables)
	if err != nil {
		t.Fatalf("probe tables: %v", err)
	}
	if len(missing) != len(EssentialTables)-1 {
		t.Fatalf("expected res_partner to be found, missing=%v", missing)
	}

	// Statistics degrade to zero for absent tables instead of failing.
	stats := b.CollectStatistics(ctx, db)
	if stats.PartnerCount != 2 {
		t.Fatalf("expected partner count 2, got %d", stats.PartnerCount)
	}
	if stats.UserCount != 0 || stats.ModulesTotal != 0 {
		t.Fatalf("absent tables must degrade to zero: %+v", stats)
	}
	if stats.TableCount != 1 {
		t.Fatalf("expected 1 table, got %d", stats.TableCount)
	}
	_ = db.Close()

	b.DropDatabase(ctx, h)
	if _, err := h.Connect(ctx); err == nil {
		t.Fatalf("expected connect to fail after drop")
	}
}

func TestBridge_LoadDump_VerificationFails(t *testing.T) {
	admin, stop := startPostgres(t)
	defer stop()
	ctx := context.Background()

	b := NewBridge("", time.Minute)
	h, err := b.CreateDatabase(ctx, admin)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	defer b.DropDatabase(ctx, h)

	// Simulate a load that completed without producing the essential
	// tables; verification must reject it regardless of tool exit codes.
	missing, err := b.missingTables(ctx, h, EssentialTables)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	verr := &ImportVerificationError{Missing: missing}
	var target *ImportVerificationError
	if !errors.As(error(verr), &target) || len(target.Missing) != len(EssentialTables) {
		t.Fatalf("unexpected verification error: %v", verr)
	}
}
