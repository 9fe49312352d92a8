package main

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/dumplift"
	cliconfig "github.com/loykin/dumplift/cmd/dumplift/config"
	"github.com/loykin/dumplift/internal/common"
	"github.com/loykin/dumplift/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a backup archive to the next schema generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logCfg, err := buildConfig()
		if err != nil {
			return err
		}
		applyLogging(logCfg)

		cfg.Observer = printProgress
		res := dumplift.Run(context.Background(), cfg)
		printSummary(res)
		if !res.Success {
			exitHandler.Exit(1)
		}
		return nil
	},
}

// buildConfig layers the optional yaml config file under flag/env values.
func buildConfig() (pipeline.Config, cliconfig.LoggingConfig, error) {
	v := viper.GetViper()

	var cfg pipeline.Config
	logCfg := cliconfig.LoggingConfig{Level: "info", Format: "text"}

	if path := v.GetString("config"); path != "" {
		fc, err := cliconfig.Load(path)
		if err != nil {
			return cfg, logCfg, err
		}
		cfg, err = fc.ToPipelineConfig()
		if err != nil {
			return cfg, logCfg, err
		}
		if fc.Logging.Level != "" {
			logCfg.Level = fc.Logging.Level
		}
		if fc.Logging.Format != "" {
			logCfg.Format = fc.Logging.Format
		}
	}

	if s := v.GetString("input"); s != "" {
		cfg.InputPath = s
	}
	if s := v.GetString("output"); s != "" {
		cfg.OutputPath = s
	}
	if s := v.GetString("path"); s != "" {
		cfg.PathID = s
	}
	if s := v.GetString("bin_dir"); s != "" {
		cfg.BinDir = s
	}
	if s := v.GetString("work_dir"); s != "" {
		cfg.WorkDir = s
	}
	if s := v.GetString("history_db"); s != "" {
		cfg.HistoryPath = s
	}
	if v.GetBool("keep_scratch") {
		cfg.KeepScratch = true
	}
	if v.GetBool("verbose") {
		logCfg.Level = "debug"
	}

	if host := v.GetString("host"); host != "" {
		if cfg.External == nil {
			cfg.External = &pipeline.ExternalServer{}
		}
		cfg.External.Host = host
		cfg.External.Port = v.GetInt("port")
		cfg.External.User = v.GetString("user")
		cfg.External.Password = v.GetString("password")
		cfg.External.AdminDB = v.GetString("admin_db")
	}

	if cfg.InputPath == "" || cfg.OutputPath == "" {
		return cfg, logCfg, fmt.Errorf("both --input and --output are required")
	}
	return cfg, logCfg, nil
}

func applyLogging(logCfg cliconfig.LoggingConfig) {
	level := common.ParseLogLevel(logCfg.Level)
	if logCfg.Format == "json" {
		common.SetDefaultLogger(common.NewJSONLogger(level))
	} else {
		common.SetDefaultLogger(common.NewLogger(level))
	}
}

func printProgress(e dumplift.Event) {
	fmt.Printf("[%3d%%] %-14s %s\n", e.Percent, e.Phase, e.Message)
}

func printSummary(res *dumplift.Result) {
	if res.Success {
		fmt.Printf("\nMigration succeeded: %s -> %s (%d scripts applied, %s)\n",
			res.SourceVersion, res.TargetVersion, len(res.MigrationsApplied), res.Duration.Round(time.Millisecond))
	} else {
		fmt.Printf("\nMigration failed after %s\n", res.Duration.Round(time.Millisecond))
		for _, e := range res.Errors {
			fmt.Printf("  [%s] %s\n", e.Phase, e.Message)
		}
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
