package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-telemetry/internal/collector"
	"github.com/tjfontaine/polyglot-telemetry/internal/logging"
	"github.com/tjfontaine/polyglot-telemetry/internal/pkg/config"
	"github.com/tjfontaine/polyglot-telemetry/internal/server"
)

func newCollectCmd() *cobra.Command {
	var (
		port     int
		capacity int
		failRate float64
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run a development collector that logs incoming event batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			if failRate < 0 || failRate > 1 {
				return fmt.Errorf("--fail-rate must be between 0 and 1")
			}

			logger := logging.NewWithWriter(config.LogConfig{Level: logLevel, Format: "text"}, cmd.OutOrStdout())

			srv := server.New("collector", port, logger)
			srv.Router.Mount("/", collector.New(
				collector.WithCapacity(capacity),
				collector.WithFailRate(failRate),
				collector.WithLogger(logger),
			))

			ctx, stop := signalContext()
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("stopping collector")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("collector shutdown", slog.String("error", err.Error()))
			}
			return <-errCh
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 4318, "port to listen on")
	cmd.Flags().IntVar(&capacity, "capacity", config.DefaultCollectorCapacity, "number of recent events kept for GET /v1/events")
	cmd.Flags().Float64Var(&failRate, "fail-rate", 0, "fraction of batches rejected with 503 (0-1)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}
