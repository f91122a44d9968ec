// Command fileexporter watches a landing filesystem for failed, stuck and
// transcoded tenant directories and exports the counts as Prometheus
// metrics.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelswisa/FileExporter/internal/config"
	"github.com/michaelswisa/FileExporter/internal/logging"
	"github.com/michaelswisa/FileExporter/internal/scanner"
)

// Exit codes.
const (
	ExitSuccess  = 0
	ExitInternal = 1
	ExitConfig   = 2
	ExitNotFound = 3
)

var configPath string

// configError marks failures to load or validate configuration.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func main() {
	root := &cobra.Command{
		Use:   "fileexporter",
		Short: "Landing filesystem anomaly exporter",
		Long: `FileExporter scans tenant landing directories for persistent failures,
zombie (stuck) folders and transcoded-output backlogs, and publishes the
counts as Prometheus gauges plus JSON snapshots of failure reasons.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $FE_CONFIG_PATH or "+config.DefaultPath+")")

	root.AddCommand(newServeCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ce *configError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ce):
		return ExitConfig
	case errors.Is(err, scanner.ErrNotFound):
		return ExitNotFound
	default:
		return ExitInternal
	}
}

// loadConfig resolves and loads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	path := config.ResolvePath(configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &configError{fmt.Errorf("loading config %s: %w", path, err)}
	}
	return cfg, nil
}

// setupLogging installs the process logger described by cfg.
func setupLogging(cfg config.LoggingConfig) (*logging.Manager, *slog.Logger) {
	logManager, logger := logging.NewManager(logging.Config{
		Level:          cfg.Level,
		Format:         cfg.Format,
		FilePath:       cfg.FilePath,
		FileMaxSizeMB:  cfg.FileMaxSizeMB,
		FileMaxFiles:   cfg.FileMaxFiles,
		FileMaxAgeDays: cfg.FileMaxAgeDays,
	})
	slog.SetDefault(logger)
	return logManager, logger
}
