package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-telemetry/internal/logging"
	"github.com/tjfontaine/polyglot-telemetry/internal/metrics"
	"github.com/tjfontaine/polyglot-telemetry/internal/pkg/config"
	tracing "github.com/tjfontaine/polyglot-telemetry/internal/telemetry"
	"github.com/tjfontaine/polyglot-telemetry/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent and serve the host API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "path to config.yaml (watched for context changes)")
	return cmd
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logOut := logging.New(cfg.Log)
	defer logOut.Close()
	slog.SetDefault(logger)

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(telemetry.ServiceName, version, os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	agent, err := telemetry.New(
		telemetry.WithFileConfig(configPath),
		telemetry.WithLogger(logger),
		telemetry.WithClientInfo(telemetry.ServiceName, version),
		telemetry.WithHTTPServer(),
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	if err := agent.Start(ctx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	logger.Info("telemetry agent serving",
		slog.Int("port", cfg.Server.Port),
		slog.String("config", configPath),
		slog.Bool("metrics", cfg.Metrics.Enabled),
		slog.Bool("tracing", cfg.Tracing.Enabled))

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping agent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := agent.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("agent shutdown complete")
	return nil
}
