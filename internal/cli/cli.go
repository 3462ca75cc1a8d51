// Package cli carries the bootstrap shared by the component binaries:
// flag parsing, configuration loading, logger setup, signal handling, and
// the exit-code contract.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitredict/backend/internal/config"
	"github.com/bitredict/backend/internal/domain"
)

// Exit codes shared by all binaries.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitConfig   = 2
	ExitChain    = 3
	ExitDatabase = 4
)

// exitError pins a specific exit code onto a wrapped error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ChainUnavailable marks an error as "chain unreachable" (exit 3).
func ChainUnavailable(err error) error {
	return &exitError{code: ExitChain, err: err}
}

// DatabaseUnavailable marks an error as "database unreachable" (exit 4).
func DatabaseUnavailable(err error) error {
	return &exitError{code: ExitDatabase, err: err}
}

// ExitCode maps an error to the binary's exit code. Fatal-config errors map
// to 2 even without an explicit marker.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if domain.ClassOf(err) == domain.ClassFatalConfig {
		return ExitConfig
	}
	return ExitFailure
}

// NewLogger builds the JSON logger at the given level and installs it as
// the slog default.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// RunFunc is a binary's entry point after bootstrap. args holds the
// subcommand and its arguments with flags already stripped.
type RunFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error

// Main is the shared main body: parse flags, load and validate config,
// build the logger, install signal handling, and dispatch. It returns the
// process exit code.
func Main(component string, args []string, run RunFunc) int {
	fs := flag.NewFlagSet(component, flag.ContinueOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return ExitConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: load config %s: %v\n", component, *configPath, err)
		return ExitConfig
	}

	logger := NewLogger(cfg.LogLevel)
	logger = logger.With(slog.String("binary", component))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return ExitConfig
	}

	logger.Info("starting",
		slog.String("environment", cfg.Environment),
		slog.String("config", *configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, fs.Args()); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down")
			return ExitOK
		}
		logger.Error("exited with error",
			slog.String("class", domain.ClassOf(err).String()),
			slog.String("error", err.Error()),
		)
		return ExitCode(err)
	}

	logger.Info("stopped")
	return ExitOK
}
