package main

import (
	"fmt"

	"github.com/loykin/dumplift"
	"github.com/spf13/cobra"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "List the registered migration paths",
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range dumplift.Paths() {
			fmt.Printf("%-10s %s -> %s (%d scripts)\n", p.ID, p.SourceVersion, p.TargetVersion, len(p.Scripts()))
			for _, s := range p.Scripts() {
				fmt.Printf("  %-36s %s\n", s.ID, s.Name)
			}
		}
	},
}
