// Package adapter implements the per-protocol position readers. Every
// adapter follows the same failure policy: a failed or undecodable external
// call means "no position", never an error, so one unavailable protocol
// cannot block the others. Causes are logged and counted.
package adapter

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
	"github.com/alanyoungcy/yieldagg/internal/oracle"
)

// Adapter reads one owner's position in one protocol. ok is false when the
// owner holds nothing there or when any call along the way failed.
type Adapter interface {
	Protocol() domain.Protocol
	Fetch(ctx context.Context, cfg domain.Settings, owner common.Address) (pos domain.Position, ok bool)
}

// PriceSource resolves USD prices. *oracle.Resolver implements it.
type PriceSource interface {
	ResolvePrice(ctx context.Context, registry oracle.FeedRegistry, token common.Address) (fixed.Value, error)
}

// Clock returns the query-time timestamp stamped on positions.
type Clock func() time.Time

// base carries what every adapter shares: logging, the clock and a
// suppressed-failure counter.
type base struct {
	protocol domain.Protocol
	now      Clock
	logger   *slog.Logger
	failures atomic.Int64
}

func newBase(p domain.Protocol, now Clock, logger *slog.Logger) base {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return base{
		protocol: p,
		now:      now,
		logger:   logger.With(slog.String("component", "adapter"), slog.String("protocol", p.String())),
	}
}

// Protocol implements Adapter.
func (b *base) Protocol() domain.Protocol { return b.protocol }

// Failures returns how many fetches were suppressed because of an error.
func (b *base) Failures() int64 { return b.failures.Load() }

// suppress records a failed fetch and reports "no position".
func (b *base) suppress(ctx context.Context, owner common.Address, step string, err error) (domain.Position, bool) {
	b.failures.Add(1)
	b.logger.DebugContext(ctx, "adapter: fetch suppressed",
		slog.String("owner", owner.Hex()),
		slog.String("step", step),
		slog.String("error", err.Error()),
	)
	return domain.Position{}, false
}

// FailureCounter is implemented by every adapter in this package.
type FailureCounter interface {
	Failures() int64
}
