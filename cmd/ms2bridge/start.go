package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/config"
	"github.com/marmos91/ms2bridge/pkg/server"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var (
		configPath      string
		allowDuplicates bool
		limit           uint32
	)

	cmd := &cobra.Command{
		Use:   "start [backend-id...]",
		Short: "Start publishing the configured backends",
		Long: `Start publishing the configured backends on D-Bus.

When backend ids are given, only those configured backends are loaded.
Runs until interrupted (SIGINT or SIGTERM).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Flags override the file only when set
			if cmd.Flags().Changed("allow-duplicates") {
				cfg.Server.AllowDuplicates = allowDuplicates
			}
			if cmd.Flags().Changed("limit") {
				cfg.Server.Limit = limit
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, args)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file (default: "+config.GetDefaultConfigPath()+")")
	cmd.Flags().BoolVarP(&allowDuplicates, "allow-duplicates", "D", false, "Publish backends whose display name is already taken")
	cmd.Flags().Uint32VarP(&limit, "limit", "l", 0, "Maximum number of objects per listing or search (0 = unlimited)")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, only []string) error {
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	logger.Info("ms2bridge %s starting", version)
	logger.Debug("Log level set to: %s", cfg.Logging.Level)

	metricsResult := config.InitializeMetrics(cfg)

	reg, err := config.InitializeRegistry(ctx, cfg, only, metricsResult.BridgeMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	if reg.Count() == 0 {
		logger.Warn("No backend could be published")
	}

	srv := server.New(reg, cfg.Server.ShutdownTimeout)

	adapters, err := config.CreateAdapters(cfg)
	if err != nil {
		_ = reg.Close()
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			_ = reg.Close()
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	go metricsResult.Serve(ctx)

	logger.Info("Serving %d backend(s). Press Ctrl+C to stop.", reg.Count())

	err = srv.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}
