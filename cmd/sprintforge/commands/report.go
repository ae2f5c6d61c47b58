package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sprintforge/sprintforge/internal/config"
	"github.com/sprintforge/sprintforge/internal/report"
)

// NewReportCommand creates the one-shot report generation command.
func NewReportCommand() *cobra.Command {
	var (
		configPath string
		sprintID   string
		owner      string
		repo       string
		full       bool
		noCache    bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate one sprint report and print it as JSON",
		Long: `Generate a sprint report for the given sprint and print it to stdout.

With --full the report includes all tiers, the forward-looking section, and
enhanced SCM analytics. Owner and repo default to the configured SCM values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			application, buildErr := buildApp(cfg)
			if buildErr != nil {
				return buildErr
			}

			defer application.close(context.Background())

			request := report.Request{
				SprintID: sprintID,
				Owner:    owner,
				Repo:     repo,
				NoCache:  noCache,
			}

			if request.Owner == "" {
				request.Owner = cfg.SCM.Owner
			}

			if request.Repo == "" {
				request.Repo = cfg.SCM.Repo
			}

			if full {
				request.IncludeTier1 = true
				request.IncludeTier2 = true
				request.IncludeTier3 = true
				request.IncludeForwardLooking = true
				request.IncludeEnhancedSCM = true
			}

			generated, genErr := application.reports.Generate(cobraCmd.Context(), request)
			if genErr != nil {
				return fmt.Errorf("generate report: %w", genErr)
			}

			encoded, encErr := json.MarshalIndent(generated, "", "  ")
			if encErr != nil {
				return fmt.Errorf("encode report: %w", encErr)
			}

			fmt.Fprintln(os.Stdout, string(encoded))

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the config file")
	cmd.Flags().StringVar(&sprintID, "sprint", "", "Sprint identifier (required)")
	cmd.Flags().StringVar(&owner, "owner", "", "Repository owner for SCM correlation")
	cmd.Flags().StringVar(&repo, "repo", "", "Repository name for SCM correlation")
	cmd.Flags().BoolVar(&full, "full", false, "Include all tiers, forward-looking, and enhanced SCM sections")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the report cache")

	_ = cmd.MarkFlagRequired("sprint")

	return cmd
}
