// Package aggregator is the entry point for position and portfolio reads and
// for the owner-gated configuration surface that drives them.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/yieldagg/internal/adapter"
	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
	"github.com/alanyoungcy/yieldagg/internal/oracle"
	"github.com/alanyoungcy/yieldagg/internal/portfolio"
)

// Authorizer is the ownership capability the engine defers to for every
// gated mutation. *ownable.Ownable implements it.
type Authorizer interface {
	Owner() common.Address
	OnlyOwner(caller common.Address) error
	TransferOwnership(caller, newOwner common.Address) error
	RenounceOwnership(caller common.Address) error
}

// Notifier delivers operator alerts. *notify.Notifier implements it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// PriceReader resolves token prices for the inspection endpoints.
// *oracle.Resolver implements it.
type PriceReader interface {
	LatestRound(ctx context.Context, registry oracle.FeedRegistry, token common.Address) (oracle.Round, error)
	ResolvePrice(ctx context.Context, registry oracle.FeedRegistry, token common.Address) (fixed.Value, error)
}

// Deps are the engine's collaborators. Adapters and Auth are required; the
// rest may be nil.
type Deps struct {
	Adapters []adapter.Adapter
	Auth     Authorizer
	Prices   PriceReader
	Sink     domain.EventSink
	Store    domain.SettingsStore
	Audit    domain.AuditStore
	Notifier Notifier
	Lock     domain.LockManager
	Clock    func() time.Time
	Logger   *slog.Logger
}

const (
	settingsLockKey = "yieldagg:settings"
	settingsLockTTL = 10 * time.Second

	breakdownConcurrency = 4
)

// Engine orchestrates the protocol adapters and owns the configuration.
// Reads take one settings snapshot per request; mutations are serialized.
type Engine struct {
	adapters []adapter.Adapter
	auth     Authorizer
	prices   PriceReader
	sink     domain.EventSink
	store    domain.SettingsStore
	audit    domain.AuditStore
	notifier Notifier
	lock     domain.LockManager
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.RWMutex
	settings domain.Settings
}

// NewEngine creates an Engine starting from initial. Adapters are ordered
// by protocol tag so results always come back Lending, ConcentratedAMM,
// StableAMM.
func NewEngine(initial domain.Settings, deps Deps) (*Engine, error) {
	if deps.Auth == nil {
		return nil, errors.New("aggregator: authorizer is required")
	}
	if len(deps.Adapters) == 0 {
		return nil, errors.New("aggregator: at least one adapter is required")
	}
	adapters := append([]adapter.Adapter(nil), deps.Adapters...)
	sort.SliceStable(adapters, func(i, j int) bool {
		return adapters[i].Protocol() < adapters[j].Protocol()
	})

	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := initial.Clone()
	settings.Owner = deps.Auth.Owner()

	return &Engine{
		adapters: adapters,
		auth:     deps.Auth,
		prices:   deps.Prices,
		sink:     deps.Sink,
		store:    deps.Store,
		audit:    deps.Audit,
		notifier: deps.Notifier,
		lock:     deps.Lock,
		now:      now,
		logger:   logger.With(slog.String("component", "aggregator")),
		settings: settings,
	}, nil
}

// Settings returns a copy of the current configuration.
func (e *Engine) Settings() domain.Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.settings.Clone()
	s.Owner = e.auth.Owner()
	return s
}

// CurrentOwner returns the owner, or the zero address once renounced.
func (e *Engine) CurrentOwner() common.Address {
	return e.auth.Owner()
}

// GetPositions returns owner's positions across every protocol. A disabled
// engine returns an empty slice without any external call.
func (e *Engine) GetPositions(ctx context.Context, owner common.Address) []domain.Position {
	cfg := e.Settings()
	if !cfg.Enabled {
		return []domain.Position{}
	}
	return e.fetch(ctx, cfg, owner)
}

// GetPositionsMulti concatenates GetPositions for each owner in input order.
// Owners are not deduplicated.
func (e *Engine) GetPositionsMulti(ctx context.Context, owners []common.Address) []domain.Position {
	cfg := e.Settings()
	out := []domain.Position{}
	if !cfg.Enabled {
		return out
	}
	for _, owner := range owners {
		out = append(out, e.fetch(ctx, cfg, owner)...)
	}
	return out
}

// GetPortfolioSummary summarizes owner's positions.
func (e *Engine) GetPortfolioSummary(ctx context.Context, owner common.Address) domain.PortfolioSummary {
	if !e.Settings().Enabled {
		return domain.ZeroSummary()
	}
	return portfolio.Summarize(e.GetPositions(ctx, owner), e.now())
}

// GetPortfolioSummaryMulti summarizes the positions of every owner together.
func (e *Engine) GetPortfolioSummaryMulti(ctx context.Context, owners []common.Address) domain.PortfolioSummary {
	if !e.Settings().Enabled {
		return domain.ZeroSummary()
	}
	return portfolio.Summarize(e.GetPositionsMulti(ctx, owners), e.now())
}

// GetWalletBreakdown returns per-wallet positions and summaries plus one
// summary over all of them. Wallets are fetched concurrently but reported in
// input order.
func (e *Engine) GetWalletBreakdown(ctx context.Context, owners []common.Address) domain.WalletBreakdown {
	cfg := e.Settings()
	wallets := make([]domain.WalletPortfolio, len(owners))
	now := e.now()

	if !cfg.Enabled {
		for i, owner := range owners {
			wallets[i] = domain.WalletPortfolio{Owner: owner, Positions: []domain.Position{}, Summary: domain.ZeroSummary()}
		}
		return domain.WalletBreakdown{Wallets: wallets, Aggregated: domain.ZeroSummary()}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(breakdownConcurrency)
	for i, owner := range owners {
		g.Go(func() error {
			positions := e.fetch(gctx, cfg, owner)
			wallets[i] = domain.WalletPortfolio{
				Owner:     owner,
				Positions: positions,
				Summary:   portfolio.Summarize(positions, now),
			}
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.Position
	for _, w := range wallets {
		all = append(all, w.Positions...)
	}
	return domain.WalletBreakdown{Wallets: wallets, Aggregated: portfolio.Summarize(all, now)}
}

// LatestRound reads the raw feed round for token. Errors propagate.
func (e *Engine) LatestRound(ctx context.Context, token common.Address) (oracle.Round, error) {
	if e.prices == nil {
		return oracle.Round{}, fmt.Errorf("aggregator: latest round: %w", domain.ErrCallFailed)
	}
	return e.prices.LatestRound(ctx, e.Settings(), token)
}

// ResolvePrice returns token's USD price. Unlike adapter lookups, failures
// are returned to the caller.
func (e *Engine) ResolvePrice(ctx context.Context, token common.Address) (fixed.Value, error) {
	if e.prices == nil {
		return fixed.Value{}, fmt.Errorf("aggregator: resolve price: %w", domain.ErrCallFailed)
	}
	return e.prices.ResolvePrice(ctx, e.Settings(), token)
}

// AdapterFailures reports suppressed fetch failures per protocol.
func (e *Engine) AdapterFailures() map[string]int64 {
	out := make(map[string]int64, len(e.adapters))
	for _, a := range e.adapters {
		if fc, ok := a.(adapter.FailureCounter); ok {
			out[a.Protocol().String()] = fc.Failures()
		}
	}
	return out
}

// fetch runs every adapter for owner concurrently and returns the positions
// in adapter order.
func (e *Engine) fetch(ctx context.Context, cfg domain.Settings, owner common.Address) []domain.Position {
	found := make([]*domain.Position, len(e.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range e.adapters {
		g.Go(func() error {
			if pos, ok := a.Fetch(gctx, cfg, owner); ok {
				found[i] = &pos
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.Position, 0, len(found))
	for i, pos := range found {
		count := 0
		if pos != nil {
			out = append(out, *pos)
			count = 1
			e.emit(ctx, domain.Event{
				Name: domain.EventPositionUpdated,
				PositionUpdated: &domain.PositionUpdated{
					Owner:      pos.Owner.Hex(),
					Protocol:   pos.Protocol,
					TotalValue: pos.AccruedUSD.Raw().String(),
					APY:        pos.APY.Raw().String(),
				},
			})
		}
		e.emit(ctx, domain.Event{
			Name: domain.EventProtocolDataFetched,
			ProtocolDataFetched: &domain.ProtocolDataFetched{
				Protocol:       e.adapters[i].Protocol(),
				PositionsCount: count,
			},
		})
	}
	return out
}

func (e *Engine) emit(ctx context.Context, evt domain.Event) {
	if e.sink == nil {
		return
	}
	evt.EmittedAt = e.now()
	if err := e.sink.Emit(ctx, evt); err != nil {
		e.logger.WarnContext(ctx, "event delivery failed",
			slog.String("event", evt.Name),
			slog.String("error", err.Error()),
		)
	}
}
