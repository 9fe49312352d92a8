package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/dumplift/internal/pipeline"
	"gopkg.in/yaml.v3"
)

// LoggingConfig controls the CLI's logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // error, warn, info, debug
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// FileConfig is the yaml document accepted via --config. Flags and
// environment variables override whatever is set here.
type FileConfig struct {
	Input       string                   `mapstructure:"input" yaml:"input"`
	Output      string                   `mapstructure:"output" yaml:"output"`
	Path        string                   `mapstructure:"path" yaml:"path"`
	BinDir      string                   `mapstructure:"bin_dir" yaml:"bin_dir"`
	KeepScratch bool                     `mapstructure:"keep_scratch" yaml:"keep_scratch"`
	WorkDir     string                   `mapstructure:"work_dir" yaml:"work_dir"`
	HistoryPath string                   `mapstructure:"history_path" yaml:"history_path"`
	ToolTimeout string                   `mapstructure:"tool_timeout" yaml:"tool_timeout"`
	External    *pipeline.ExternalServer `mapstructure:"external" yaml:"external"`
	Logging     LoggingConfig            `mapstructure:"logging" yaml:"logging"`
}

// Load reads and decodes a yaml config file. The document is parsed into a
// generic map first so unknown keys can be rejected before decoding.
func Load(path string) (*FileConfig, error) {
	clean := filepath.Clean(path)
	data, err := os.ReadFile(clean) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	var c FileConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &c,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &c, nil
}

// ToPipelineConfig converts the file document into a pipeline config.
func (c *FileConfig) ToPipelineConfig() (pipeline.Config, error) {
	cfg := pipeline.Config{
		InputPath:   c.Input,
		OutputPath:  c.Output,
		PathID:      c.Path,
		BinDir:      c.BinDir,
		KeepScratch: c.KeepScratch,
		WorkDir:     c.WorkDir,
		HistoryPath: c.HistoryPath,
		External:    c.External,
	}
	if c.ToolTimeout != "" {
		d, err := time.ParseDuration(c.ToolTimeout)
		if err != nil {
			return cfg, fmt.Errorf("invalid tool_timeout %q: %w", c.ToolTimeout, err)
		}
		cfg.ToolTimeout = d
	}
	return cfg, nil
}
