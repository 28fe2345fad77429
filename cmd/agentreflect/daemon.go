package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agentreflect/internal/paths"
	"agentreflect/internal/pipeline"
	"agentreflect/internal/scheduler"
	"agentreflect/internal/slogutil"
)

const (
	daemonLogMaxSize    = "10MiB"
	daemonLogMaxBackups = 3
)

var (
	daemonRunNow   bool
	daemonSchedule string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the daily analysis on a schedule",
	Long: `Run the pipeline on schedule.expression until interrupted.

Supported expressions:
  every 6h            fixed interval (minimum 1m)
  daily at 06:00      once a day, local time
  0 6 * * 1-5         five-field cron

Logs are also written to <output_dir>/logs/agentreflect.log.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonRunNow, "run-now", false, "Run once immediately before waiting for the schedule")
	daemonCmd.Flags().StringVar(&daemonSchedule, "schedule", "", "Override schedule.expression")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	res, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := res.Config

	expr := cfg.Schedule.Expression
	if daemonSchedule != "" {
		expr = daemonSchedule
	}
	schedule, err := scheduler.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	level := slogutil.LevelFromFlags(cfg.General.LogLevel, verbose, quiet)
	logger := newLogger(cfg)
	fileLogger, logFile, err := slogutil.NewRotatingFileLogger(paths.LogPath(cfg.General.OutputDir), level, daemonLogMaxSize, daemonLogMaxBackups)
	if err != nil {
		logger.Warn("File logging disabled", "error", err)
	} else {
		defer logFile.Close()
		logger = slog.New(slogutil.NewTeeHandler(logger.Handler(), fileLogger.Handler()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, closer := newPipeline(cfg, logger)
	defer closer.Close()

	loop := scheduler.NewLoop(schedule, func(ctx context.Context) error {
		_, err := p.Execute(ctx, pipeline.Options{})
		return err
	}, logger)

	logger.Info("Daemon started", "schedule", schedule.String(), "output_dir", cfg.General.OutputDir)
	err = loop.Run(ctx, daemonRunNow)
	if errors.Is(err, context.Canceled) {
		logger.Info("Daemon stopped")
		return nil
	}
	return err
}
