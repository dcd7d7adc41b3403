package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yourusername/pvebackup/internal/api"
	"github.com/yourusername/pvebackup/internal/logging"
	"github.com/yourusername/pvebackup/internal/metrics"
	"github.com/yourusername/pvebackup/internal/orchestrator"
	"golang.org/x/sync/errgroup"
)

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the backup scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, *configPath)
		},
	}
}

func newRunOnceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Back up every node once, now, and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startup, closeStartup := startupLogger(cmd.ErrOrStderr(), *configPath)
			cfg, path, err := loadConfig(*configPath, startup)
			closeStartup()
			if err != nil {
				return err
			}

			logger, err := initLogging(cfg)
			defer logging.Close()
			if err != nil {
				return err
			}
			logConfig(logger, path, cfg)

			rule, err := parseSchedule(cfg, logger)
			if err != nil {
				return err
			}
			cycles, err := newCycleRunner(cfg, logger, nil)
			if err != nil {
				return err
			}
			loop, err := orchestrator.New(cfg, rule, cycles, orchestrator.WithLogger(logger))
			if err != nil {
				return withExitCode(exitScheduleInvalid, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report := loop.RunNow(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: %d succeeded, %d failed in %s\n",
				report.ID, report.Succeeded, report.Failed, report.Duration())
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d node backups failed", report.Failed, len(report.Outcomes))
			}
			return nil
		},
	}
}

func runDaemon(cmd *cobra.Command, configPath string) error {
	startup, closeStartup := startupLogger(cmd.ErrOrStderr(), configPath)
	cfg, path, err := loadConfig(configPath, startup)
	closeStartup()
	if err != nil {
		return err
	}

	logger, err := initLogging(cfg)
	defer logging.Close()
	if err != nil {
		return err
	}
	logConfig(logger, path, cfg)

	rule, err := parseSchedule(cfg, logger)
	if err != nil {
		logger.Error("invalid schedule", "schedule", cfg.Schedule, "error", err)
		return err
	}

	collector := metrics.NewCollector()
	cycles, err := newCycleRunner(cfg, logger, collector)
	if err != nil {
		return err
	}

	loop, err := orchestrator.New(cfg, rule, cycles,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(collector),
	)
	if err != nil {
		return withExitCode(exitScheduleInvalid, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	if cfg.API.Enabled {
		router := api.SetupRouter(cfg, loop, collector, logger, BuildVersion)
		g.Go(func() error {
			if err := api.Serve(gctx, cfg.API.Listen, router, logger); err != nil {
				logger.Error("status server failed", "addr", cfg.API.Listen, "error", err)
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
