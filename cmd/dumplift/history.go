package main

import (
	"fmt"
	"time"

	"github.com/loykin/dumplift/internal/history"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past migration runs recorded in the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("history-db")
		if err != nil {
			return err
		}
		if path == "" {
			return fmt.Errorf("--history-db is required")
		}

		st, err := history.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		runs, err := st.ListRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no recorded runs")
			return nil
		}
		for _, r := range runs {
			status := "failed"
			if r.Success {
				status = "ok"
			}
			fmt.Printf("%4d  %s  %-6s %s -> %s  %d scripts  %s\n",
				r.ID, r.StartedAt.Local().Format(time.DateTime), status,
				r.SourceVersion, r.TargetVersion, len(r.ScriptsApplied),
				r.Duration.Round(time.Millisecond))
			if r.Error != "" {
				fmt.Printf("      %s\n", r.Error)
			}
		}
		return nil
	},
}
