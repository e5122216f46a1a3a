package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/yieldagg/internal/crypto"
	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/server"
	"github.com/alanyoungcy/yieldagg/internal/server/handler"
	"github.com/alanyoungcy/yieldagg/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP API and, when an event bus is configured, the
// WebSocket event stream. It returns when ctx is cancelled or a component
// fails.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if deps.EventBus != nil {
		hub = ws.NewHub(deps.EventBus, a.logger, ws.Config{
			Channel:   a.cfg.Redis.EventChannel,
			Stream:    a.cfg.Redis.EventStream,
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error { return hub.Run(ctx) })
	}

	var snapshots handler.SnapshotService
	if deps.Snapshots != nil {
		snapshots = deps.Snapshots
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.Backends, deps.Engine, a.logger),
		Portfolio: handler.NewPortfolioHandler(deps.Engine, a.cfg.Server.MaxOwners, a.logger),
		Snapshots: handler.NewSnapshotHandler(snapshots, a.cfg.Server.MaxOwners, a.logger),
		Prices:    handler.NewPriceHandler(deps.Engine, a.logger),
		Admin:     handler.NewAdminHandler(deps.Engine, deps.AuditStore, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		AuthMaxSkew: a.cfg.Server.AuthMaxSkew.Duration,
		ReplayGuard: deps.ReplayGuard,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})

	return g.Wait()
}

// QueryMode values the owners given on the command line once and writes the
// per-wallet breakdown as JSON.
func (a *App) QueryMode(ctx context.Context, deps *Dependencies) error {
	owners, err := parseOwnerFlags(a.opts.Owners)
	if err != nil {
		return fmt.Errorf("query mode: %w", err)
	}

	breakdown := deps.Engine.GetWalletBreakdown(ctx, owners)
	if err := ctx.Err(); err != nil {
		return err
	}

	failures := deps.Engine.AdapterFailures()
	for protocol, n := range failures {
		if n > 0 {
			a.logger.WarnContext(ctx, "adapter calls suppressed",
				slog.String("protocol", protocol),
				slog.Int64("failures", n),
			)
		}
	}

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(breakdown)
}

// SignMode prints the signature headers for one admin request, signed with
// the configured owner key.
func (a *App) SignMode(ctx context.Context) error {
	if a.opts.Method == "" || a.opts.Path == "" {
		return errors.New("sign mode: -method and -path are required")
	}
	method := strings.ToUpper(a.opts.Method)
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodPost:
	default:
		return fmt.Errorf("sign mode: unsupported method %q", a.opts.Method)
	}

	signer, err := crypto.LoadSigner(crypto.KeySource{
		RawPrivateKey: a.cfg.Admin.PrivateKey,
		KeyFile:       a.cfg.Admin.KeyFile,
		Password:      a.cfg.Admin.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("sign mode: %w", err)
	}

	headers, err := signer.SignRequest(method, a.opts.Path, []byte(a.opts.Body), time.Now())
	if err != nil {
		return fmt.Errorf("sign mode: %w", err)
	}
	a.logger.InfoContext(ctx, "signed admin request",
		slog.String("method", method),
		slog.String("target", a.opts.Path),
		slog.String("signer", signer.Address().Hex()),
	)

	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(headers)
}

// parseOwnerFlags validates -owner values, accepting comma-separated lists.
func parseOwnerFlags(raw []string) ([]common.Address, error) {
	var owners []common.Address
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !common.IsHexAddress(part) {
				return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOwner, part)
			}
			owners = append(owners, common.HexToAddress(part))
		}
	}
	if len(owners) == 0 {
		return nil, fmt.Errorf("%w: at least one -owner is required", domain.ErrInvalidOwner)
	}
	return owners, nil
}
