package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sprintforge/sprintforge/internal/config"
	"github.com/sprintforge/sprintforge/internal/mcp"
	"github.com/sprintforge/sprintforge/pkg/observability"
	"github.com/sprintforge/sprintforge/pkg/version"
)

// metricsReadHeaderTimeout bounds scrape request header reads.
const metricsReadHeaderTimeout = 5 * time.Second

// NewServeCommand creates the MCP server command.
func NewServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes sprint reporting capabilities as tools that AI agents
can discover and invoke: sprint and issue queries, commit and pull request
windows, and full sprint report generation.`,
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

			red, redErr := observability.NewREDMetrics(application.providers.Meter)
			if redErr != nil {
				return redErr
			}

			if cfg.Observability.MetricsEnabled && cfg.Observability.MetricsAddr != "" {
				stopMetrics := startMetricsServer(cfg.Observability.MetricsAddr, application.logger)
				defer stopMetrics()
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Registry: application.registry,
				Version:  version.Version,
				Logger:   application.logger,
				Metrics:  red,
				Tracer:   application.providers.Tracer,
			})

			application.logger.Info("mcp server starting",
				"tools", len(srv.ListToolNames()), "version", version.Version)

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the config file")

	return cmd
}

// startMetricsServer serves the Prometheus scrape endpoint on addr and
// returns a function that shuts it down.
func startMetricsServer(addr string, logger *slog.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint failed", "addr", addr, "error", err)
		}
	}()

	logger.Info("metrics endpoint listening", "addr", addr)

	return func() {
		err := srv.Shutdown(context.Background())
		if err != nil {
			logger.Warn("metrics endpoint shutdown failed", "error", err)
		}
	}
}
