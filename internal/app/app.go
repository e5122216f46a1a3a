// Package app wires the yield aggregator together and runs it in the
// configured mode: the HTTP server, a one-shot portfolio query, or the admin
// request signer.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/yieldagg/internal/config"
)

// Options carries command-line inputs that are not part of the config file.
type Options struct {
	// Owners are the wallets valued by query mode.
	Owners []string

	// Method, Path and Body describe the admin request sign mode signs.
	Method string
	Path   string
	Body   string
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	opts    Options
	out     io.Writer
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger. Query and
// sign output goes to stdout.
func New(cfg *config.Config, opts Options, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		opts:   opts,
		out:    os.Stdout,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run selects the operating mode and blocks until it finishes or ctx is
// cancelled. Resources acquired during wiring are released by Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	mode := strings.ToLower(a.cfg.Mode)
	if mode == "sign" {
		return a.SignMode(ctx)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case "server":
		return a.ServerMode(ctx, deps)
	case "query":
		return a.QueryMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
