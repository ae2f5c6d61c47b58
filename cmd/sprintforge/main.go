// Package main provides the entry point for the sprintforge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprintforge/sprintforge/cmd/sprintforge/commands"
	"github.com/sprintforge/sprintforge/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sprintforge",
		Short: "Sprintforge - sprint report aggregation engine",
		Long: `Sprintforge aggregates tracker and SCM activity into sprint reports.

Commands:
  serve     Start the MCP server on stdio
  report    Generate one sprint report and print it`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version.String())
		},
	}
}
