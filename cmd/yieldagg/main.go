// Command yieldagg is the entry point for the yield aggregator. It loads
// configuration, validates it, sets up signal handling, and runs the
// application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/yieldagg/internal/app"
	"github.com/alanyoungcy/yieldagg/internal/config"
)

// ownerFlags collects repeated -owner values.
type ownerFlags []string

func (o *ownerFlags) String() string { return strings.Join(*o, ",") }

func (o *ownerFlags) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func main() {
	var owners ownerFlags
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (server, query, sign)")
	method := flag.String("method", "", "sign mode: HTTP method of the admin request")
	path := flag.String("path", "", "sign mode: request path and query, e.g. /api/admin/audit?limit=20")
	body := flag.String("body", "", "sign mode: exact JSON request body")
	flag.Var(&owners, "owner", "query mode: wallet address (repeatable or comma-separated)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// Query and sign modes print results on stdout, so logs go to stderr.
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("yield aggregator starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, app.Options{
		Owners: owners,
		Method: *method,
		Path:   *path,
		Body:   *body,
	}, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("yield aggregator stopped")
}
