package dbserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loykin/dumplift/internal/common"
	"github.com/loykin/dumplift/internal/constants"
	"github.com/loykin/dumplift/internal/pgtool"
)

// State tracks the one-directional life of an embedded server. Once stopped
// an instance is never restarted; callers needing a live server again must
// build a fresh instance.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCleanedUp:
		return "cleaned-up"
	default:
		return "unknown"
	}
}

// ConnInfo is the connection endpoint of a running embedded server.
type ConnInfo struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Options configures an embedded server.
type Options struct {
	// BinDir is the explicit PostgreSQL binary directory (embedded mode).
	BinDir string
	// DataDir, when set, is reused as-is and never deleted by Cleanup.
	DataDir string
	// BaseDir is where auto-generated data directories are created
	// (os.TempDir when empty).
	BaseDir          string
	ReadinessTimeout time.Duration
}

// Server owns the full life of one disposable PostgreSQL server process.
type Server struct {
	opts     Options
	resolver pgtool.Resolver
	log      *common.Logger

	state    State
	dataDir  string
	autoDir  bool
	port     int
	password string
	logPath  string
}

// New builds an embedded server in the Uninitialized state.
func New(opts Options) *Server {
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = constants.DefaultReadinessTimeout
	}
	return &Server{
		opts:     opts,
		resolver: pgtool.Resolver{BinDir: opts.BinDir},
		log:      common.GetLogger().WithComponent("dbserver"),
	}
}

// State returns the current lifecycle state.
func (s *Server) State() State { return s.state }

// DataDir returns the instance's data directory ("" before Init).
func (s *Server) DataDir() string { return s.dataDir }

// Init allocates a port, prepares a data directory and runs initdb against a
// freshly generated superuser credential. Calling Init on an already
// initialized instance is a no-op.
func (s *Server) Init(ctx context.Context) error {
	if s.state != StateUninitialized {
		return nil
	}

	port, err := findFreePort(constants.EmbeddedPortRangeStart, constants.EmbeddedPortRangeEnd)
	if err != nil {
		return &InitializationError{Err: err}
	}
	s.port = port

	if s.opts.DataDir != "" {
		s.dataDir = s.opts.DataDir
	} else {
		base := s.opts.BaseDir
		if base == "" {
			base = os.TempDir()
		}
		s.dataDir = filepath.Join(base, fmt.Sprintf("%s%d-%s", constants.DataDirPrefix, time.Now().Unix(), uuid.NewString()[:8]))
		s.autoDir = true
	}
	// A stale directory from a crashed previous run at the same path would
	// make initdb refuse to run.
	if err := os.RemoveAll(s.dataDir); err != nil {
		return &InitializationError{Err: fmt.Errorf("remove stale data dir: %w", err)}
	}

	s.password = uuid.NewString()
	pwFile, err := writePasswordFile(s.password)
	if err != nil {
		return &InitializationError{Err: err}
	}
	defer func() { _ = os.Remove(pwFile) }()

	cmd := pgtool.Command{
		Bin: s.resolver.Path(pgtool.ToolInitDB),
		Args: []string{
			"-D", s.dataDir,
			"-U", constants.EmbeddedSuperuser,
			"--pwfile", pwFile,
			"--auth=md5",
			"-E", "UTF8",
		},
		Timeout: 2 * time.Minute,
	}
	res, err := cmd.Run(ctx)
	if err != nil {
		return &InitializationError{Output: res.Stderr, Err: err}
	}
	if res.ExitCode != 0 {
		return &InitializationError{Output: res.Stdout + res.Stderr, Err: fmt.Errorf("initdb exited with code %d", res.ExitCode)}
	}

	if err := s.appendThrowawaySettings(); err != nil {
		return &InitializationError{Err: err}
	}

	s.state = StateInitialized
	s.log.Info("instance initialized", "data_dir", s.dataDir, "port", s.port)
	return nil
}

// appendThrowawaySettings disables durability in exchange for load speed.
// The instance never outlives one pipeline run; a crash means rerunning the
// migration from the original archive, never recovering this server's data.
func (s *Server) appendThrowawaySettings() error {
	settings := strings.Join([]string{
		"fsync = off",
		"synchronous_commit = off",
		"full_page_writes = off",
		"wal_level = minimal",
		"max_wal_senders = 0",
		"shared_buffers = 256MB",
		"maintenance_work_mem = 128MB",
		"checkpoint_timeout = 30min",
		"",
	}, "\n")

	confPath := filepath.Join(s.dataDir, "postgresql.auto.conf")
	f, err := os.OpenFile(confPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path under our own data dir
	if err != nil {
		return fmt.Errorf("open %s: %w", confPath, err)
	}
	if _, err := f.WriteString("\n" + settings); err != nil {
		_ = f.Close()
		return fmt.Errorf("append settings: %w", err)
	}
	return f.Close()
}

// Start launches the server detached via pg_ctl with its output redirected
// to a log file, then polls a raw TCP connection until the port accepts.
func (s *Server) Start(ctx context.Context) error {
	if s.state != StateInitialized {
		return &StartupError{Err: fmt.Errorf("cannot start from state %s", s.state)}
	}

	s.logPath = filepath.Join(s.dataDir, "server.log")
	cmd := pgtool.Command{
		Bin: s.resolver.Path(pgtool.ToolPgCtl),
		Args: []string{
			"-D", s.dataDir,
			"-l", s.logPath,
			"-o", fmt.Sprintf("-p %d -c listen_addresses=127.0.0.1", s.port),
			"-w",
			"start",
		},
		Timeout: s.opts.ReadinessTimeout,
	}
	res, err := cmd.Run(ctx)
	if err != nil {
		return &StartupError{LogTail: s.logTail(), Err: err}
	}
	if res.ExitCode != 0 {
		return &StartupError{LogTail: s.logTail(), Err: fmt.Errorf("pg_ctl start exited with code %d", res.ExitCode)}
	}

	if err := s.awaitReady(ctx); err != nil {
		return err
	}
	s.recordPid()

	s.state = StateRunning
	s.log.Info("instance running", "port", s.port)
	return nil
}

// awaitReady polls the listening port. pg_ctl -w already waits, but its
// notion of "started" has not always meant "accepting connections", so the
// socket is probed independently.
func (s *Server) awaitReady(ctx context.Context) error {
	deadline := time.Now().Add(s.opts.ReadinessTimeout)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port))
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(constants.DefaultReadinessInterval)
	}
	return &ReadinessTimeoutError{Port: s.port, Timeout: s.opts.ReadinessTimeout}
}

// recordPid copies the server PID from postmaster.pid into our own marker
// file so the orphan scan can terminate leftovers from crashed runs.
func (s *Server) recordPid() {
	data, err := os.ReadFile(filepath.Join(s.dataDir, "postmaster.pid")) // #nosec G304 -- path under our own data dir
	if err != nil {
		s.log.Warn("could not read postmaster.pid", "error", err)
		return
	}
	lines := strings.SplitN(string(data), "\n", 2)
	pid := strings.TrimSpace(lines[0])
	if pid == "" {
		return
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, constants.PidFileName), []byte(pid+"\n"), 0o600); err != nil {
		s.log.Warn("could not record server pid", "error", err)
	}
}

// Stop shuts the server down, fast mode first, immediate mode if that does
// not return in time. Stop never reports an error: it runs on teardown
// paths where the original failure must stay visible.
func (s *Server) Stop(ctx context.Context) {
	if s.state != StateRunning {
		return
	}
	for _, mode := range []string{"fast", "immediate"} {
		cmd := pgtool.Command{
			Bin: s.resolver.Path(pgtool.ToolPgCtl),
			Args: []string{
				"-D", s.dataDir,
				"-m", mode,
				"-t", strconv.Itoa(int(constants.DefaultStopTimeout.Seconds())),
				"-w",
				"stop",
			},
			Timeout: constants.DefaultStopTimeout + 10*time.Second,
		}
		res, err := cmd.Run(ctx)
		if err == nil && res.ExitCode == 0 {
			s.state = StateStopped
			s.log.Info("instance stopped", "mode", mode)
			return
		}
		s.log.Warn("stop attempt failed", "mode", mode, "error", err, "stderr", res.Stderr)
	}
	// Both modes failed; mark stopped anyway so Cleanup can proceed.
	s.state = StateStopped
}

// Cleanup stops the server and erases an auto-generated data directory.
// Caller-supplied directories are left alone.
func (s *Server) Cleanup(ctx context.Context) {
	if s.state == StateCleanedUp {
		return
	}
	s.Stop(ctx)
	if s.autoDir && s.dataDir != "" {
		if err := os.RemoveAll(s.dataDir); err != nil {
			s.log.Warn("data dir cleanup failed", "dir", s.dataDir, "error", err)
		}
	}
	s.state = StateCleanedUp
}

// ConnInfo is valid only while the instance is running.
func (s *Server) ConnInfo() (ConnInfo, error) {
	if s.state != StateRunning {
		return ConnInfo{}, fmt.Errorf("no connection info in state %s", s.state)
	}
	return ConnInfo{
		Host:     "127.0.0.1",
		Port:     s.port,
		User:     constants.EmbeddedSuperuser,
		Password: s.password,
	}, nil
}

func (s *Server) logTail() string {
	if s.logPath == "" {
		return ""
	}
	data, err := os.ReadFile(s.logPath) // #nosec G304 -- path under our own data dir
	if err != nil {
		return ""
	}
	const tail = 2048
	if len(data) > tail {
		data = data[len(data)-tail:]
	}
	return string(data)
}

func findFreePort(from, to int) (int, error) {
	for p := from; p <= to; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p)))
		if err == nil {
			_ = l.Close()
			return p, nil
		}
	}
	return 0, fmt.Errorf("no free port in range %d-%d", from, to)
}

func writePasswordFile(password string) (string, error) {
	f, err := os.CreateTemp("", "dumplift-pw-*")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(password + "\n"); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
