package main

import (
	"io"
	"log/slog"
	"os"

	"agentreflect/internal/analysis"
	"agentreflect/internal/cass"
	"agentreflect/internal/command"
	"agentreflect/internal/config"
	"agentreflect/internal/notify"
	"agentreflect/internal/paths"
	"agentreflect/internal/pipeline"
	"agentreflect/internal/remote"
	"agentreflect/internal/slogutil"
	"agentreflect/internal/storage"
)

// loadConfig loads the config named by --config and applies --output-dir.
func loadConfig() (*config.LoadResult, error) {
	res, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if outputDir != "" {
		res.Config.General.OutputDir = paths.ExpandHome(outputDir)
	}
	return res, nil
}

// newLogger creates the stderr logger honoring --verbose and --quiet.
func newLogger(cfg *config.Config) *slog.Logger {
	return slogutil.NewLogger(os.Stderr, slogutil.LevelFromFlags(cfg.General.LogLevel, verbose, quiet))
}

func newCassClient(cfg *config.Config, logger *slog.Logger) *cass.Client {
	return cass.NewClient(cfg.General.CassPath, command.NewExecRunner(cfg.Timeout()), logger)
}

// newPipeline wires the production collaborators. The returned closer
// releases the history database.
func newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, io.Closer) {
	runner := command.NewExecRunner(cfg.Timeout())
	deps := pipeline.Deps{
		Index:     cass.NewClient(cfg.General.CassPath, runner, logger),
		Generator: analysis.NewCommandGenerator(cfg.LLM.Method, runner),
		Notifier: notify.NewEmailer(notify.Config{
			Enabled:  cfg.Notifications.EmailEnabled,
			Provider: cfg.Notifications.EmailProvider,
			To:       cfg.Notifications.EmailTo,
			From:     cfg.Notifications.EmailFrom,
			APIKey:   cfg.Secrets.SendGridAPIKey,
		}, logger),
		Logger: logger,
	}
	if cfg.Secrets.RemoteURL != "" {
		deps.Pusher = remote.NewClient(cfg.Secrets.RemoteURL, cfg.Secrets.RemoteToken, logger)
	}

	var closer io.Closer = nopCloser{}
	store, err := storage.Open(paths.HistoryDBPath(cfg.General.OutputDir), logger)
	if err != nil {
		logger.Warn("Run history unavailable", "error", err)
	} else {
		deps.History = store
		closer = store
	}
	return pipeline.New(cfg, deps), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
