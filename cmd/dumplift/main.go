package main

import (
	"github.com/loykin/dumplift"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "dumplift",
	Short: "Migrate packaged database backups between schema generations",
	Long: "dumplift replays a backup archive into a disposable PostgreSQL instance,\n" +
		"applies the transformation catalog for the detected upgrade path, and\n" +
		"repackages the migrated result as a new archive.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Reap leftovers from crashed runs before any subcommand touches
		// the temp root.
		dumplift.RecoverOrphans()
	},
}

func init() {
	// Defaults
	v := viper.GetViper()
	v.SetDefault("config", "")
	v.SetDefault("port", 5432)
	v.SetDefault("admin_db", "postgres")

	// Environment variables support: DUMPLIFT_INPUT, DUMPLIFT_PASSWORD, ...
	v.SetEnvPrefix("DUMPLIFT")
	v.AutomaticEnv()

	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to a yaml config file")
	migrateCmd.Flags().String("input", "", "input backup archive (zip)")
	migrateCmd.Flags().String("output", "", "output archive path")
	migrateCmd.Flags().String("path", "", "migration path id (e.g. 16-to-17); auto-detected when empty")
	migrateCmd.Flags().String("bin-dir", "", "directory holding the PostgreSQL client binaries")
	migrateCmd.Flags().String("work-dir", "", "directory for scratch and data directories")
	migrateCmd.Flags().String("history-db", "", "sqlite file recording past runs")
	migrateCmd.Flags().Bool("keep-scratch", false, "retain the scratch directory for debugging")
	migrateCmd.Flags().Bool("verbose", false, "enable debug logging")
	migrateCmd.Flags().String("host", "", "external server host (embedded server when empty)")
	migrateCmd.Flags().Int("port", v.GetInt("port"), "external server port")
	migrateCmd.Flags().String("user", "", "external server user")
	migrateCmd.Flags().String("password", "", "external server password")
	migrateCmd.Flags().String("admin-db", v.GetString("admin_db"), "maintenance database for administrative commands")
	historyCmd.Flags().String("history-db", "", "sqlite file recording past runs")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("input", migrateCmd.Flags().Lookup("input"))
	_ = v.BindPFlag("output", migrateCmd.Flags().Lookup("output"))
	_ = v.BindPFlag("path", migrateCmd.Flags().Lookup("path"))
	_ = v.BindPFlag("bin_dir", migrateCmd.Flags().Lookup("bin-dir"))
	_ = v.BindPFlag("work_dir", migrateCmd.Flags().Lookup("work-dir"))
	_ = v.BindPFlag("history_db", migrateCmd.Flags().Lookup("history-db"))
	_ = v.BindPFlag("keep_scratch", migrateCmd.Flags().Lookup("keep-scratch"))
	_ = v.BindPFlag("verbose", migrateCmd.Flags().Lookup("verbose"))
	_ = v.BindPFlag("host", migrateCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("port", migrateCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("user", migrateCmd.Flags().Lookup("user"))
	_ = v.BindPFlag("password", migrateCmd.Flags().Lookup("password"))
	_ = v.BindPFlag("admin_db", migrateCmd.Flags().Lookup("admin-db"))

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
