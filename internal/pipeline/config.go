package pipeline

import (
	"time"

	"github.com/loykin/dumplift/internal/constants"
)

// ExternalServer points the pipeline at an operator-managed PostgreSQL
// server instead of an embedded one.
type ExternalServer struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	// AdminDB is the maintenance database for administrative commands.
	AdminDB string `mapstructure:"admin_db" yaml:"admin_db"`
}

// Config is everything one pipeline run needs.
type Config struct {
	InputPath  string `mapstructure:"input" yaml:"input"`
	OutputPath string `mapstructure:"output" yaml:"output"`

	// External selects external-server mode when non-nil; otherwise a
	// dedicated embedded server is brought up for the run.
	External *ExternalServer `mapstructure:"external" yaml:"external"`

	// BinDir is an explicit PostgreSQL client binary directory.
	BinDir string `mapstructure:"bin_dir" yaml:"bin_dir"`

	// PathID selects a migration path explicitly; empty means auto-detect
	// from the database's version marker.
	PathID string `mapstructure:"path" yaml:"path"`

	// KeepScratch retains the scratch directory for debugging.
	KeepScratch bool `mapstructure:"keep_scratch" yaml:"keep_scratch"`

	// WorkDir hosts scratch and data directories (os.TempDir when empty).
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`

	// HistoryPath enables the sqlite run log when set.
	HistoryPath string `mapstructure:"history_path" yaml:"history_path"`

	// ToolTimeout bounds each bulk load/export subprocess.
	ToolTimeout time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`

	// Observer receives progress events; nil means no reporting.
	Observer Observer `mapstructure:"-" yaml:"-"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ToolTimeout <= 0 {
		out.ToolTimeout = constants.DefaultToolTimeout
	}
	if out.External != nil {
		if out.External.Host == "" {
			out.External.Host = constants.DefaultPostgresHost
		}
		if out.External.Port == 0 {
			out.External.Port = constants.DefaultPostgresPort
		}
		if out.External.AdminDB == "" {
			out.External.AdminDB = constants.DefaultAdminDB
		}
	}
	return out
}
