package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

// Admin action names, used for audit rows, events and notifications.
const (
	ActionSetPriceFeed         = "set_price_feed"
	ActionSetProtocolAddresses = "set_protocol_addresses"
	ActionSetEnabled           = "set_enabled"
	ActionSetCacheDuration     = "set_cache_duration"
	ActionTransferOwnership    = "transfer_ownership"
	ActionRenounceOwnership    = "renounce_ownership"
)

// SetPriceFeed registers or overwrites the feed for token. The feed is not
// called before it is stored.
func (e *Engine) SetPriceFeed(ctx context.Context, caller, token, feed common.Address) error {
	return e.mutate(ctx, caller, ActionSetPriceFeed,
		map[string]any{"token": token.Hex(), "feed": feed.Hex()},
		func(s *domain.Settings) error {
			if s.PriceFeeds == nil {
				s.PriceFeeds = make(map[common.Address]common.Address)
			}
			s.PriceFeeds[token] = feed
			return nil
		})
}

// SetProtocolAddresses overwrites all four protocol endpoints.
func (e *Engine) SetProtocolAddresses(ctx context.Context, caller common.Address, addrs domain.ProtocolAddresses) error {
	return e.mutate(ctx, caller, ActionSetProtocolAddresses,
		map[string]any{
			"lending_data_provider": addrs.LendingDataProvider.Hex(),
			"position_manager":      addrs.PositionManager.Hex(),
			"stable_pool":           addrs.StablePool.Hex(),
			"stable_gauge":          addrs.StableGauge.Hex(),
		},
		func(s *domain.Settings) error {
			s.Protocols = addrs
			return nil
		})
}

// SetEnabled flips the master switch.
func (e *Engine) SetEnabled(ctx context.Context, caller common.Address, enabled bool) error {
	return e.mutate(ctx, caller, ActionSetEnabled,
		map[string]any{"enabled": enabled},
		func(s *domain.Settings) error {
			s.Enabled = enabled
			return nil
		})
}

// SetCacheDuration stores d. The value is reported but not enforced.
func (e *Engine) SetCacheDuration(ctx context.Context, caller common.Address, d time.Duration) error {
	return e.mutate(ctx, caller, ActionSetCacheDuration,
		map[string]any{"cache_duration": d.String()},
		func(s *domain.Settings) error {
			if d < 0 {
				return fmt.Errorf("negative cache duration %s", d)
			}
			s.CacheDuration = d
			return nil
		})
}

// TransferOwnership hands the engine to newOwner. The zero address is
// rejected with ErrInvalidOwner.
func (e *Engine) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return e.mutate(ctx, caller, ActionTransferOwnership,
		map[string]any{"new_owner": newOwner.Hex()},
		func(s *domain.Settings) error {
			if newOwner == (common.Address{}) {
				return fmt.Errorf("%w: zero address", domain.ErrInvalidOwner)
			}
			s.Owner = newOwner
			return nil
		})
}

// RenounceOwnership leaves the engine without an owner; no further
// mutation is possible.
func (e *Engine) RenounceOwnership(ctx context.Context, caller common.Address) error {
	return e.mutate(ctx, caller, ActionRenounceOwnership, nil,
		func(s *domain.Settings) error {
			s.Owner = common.Address{}
			return nil
		})
}

// mutate runs one gated change: owner check, optional distributed lock,
// apply on a copy, persist, then swap. A failure at any step leaves the
// live settings and the owner untouched.
func (e *Engine) mutate(ctx context.Context, caller common.Address, action string, detail map[string]any, apply func(*domain.Settings) error) error {
	if err := e.auth.OnlyOwner(caller); err != nil {
		return fmt.Errorf("aggregator: %s: %w", action, err)
	}

	if e.lock != nil {
		unlock, err := e.lock.Acquire(ctx, settingsLockKey, settingsLockTTL)
		if err != nil {
			return fmt.Errorf("aggregator: %s: %w", action, err)
		}
		defer unlock()
	}

	e.mu.Lock()
	// Re-check under the write lock; ownership may have moved meanwhile.
	if err := e.auth.OnlyOwner(caller); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("aggregator: %s: %w", action, err)
	}
	prevOwner := e.auth.Owner()
	next := e.settings.Clone()
	next.Owner = prevOwner
	if err := apply(&next); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("aggregator: %s: %w", action, err)
	}
	if e.store != nil {
		if err := e.store.Save(ctx, next); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("aggregator: %s: persist: %w", action, err)
		}
	}
	if next.Owner != prevOwner {
		if err := e.applyOwner(caller, next.Owner); err != nil {
			e.rollbackStore(ctx, action)
			e.mu.Unlock()
			return fmt.Errorf("aggregator: %s: %w", action, err)
		}
	}
	e.settings = next
	e.mu.Unlock()

	e.afterChange(ctx, caller, action, detail)
	return nil
}

func (e *Engine) applyOwner(caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return e.auth.RenounceOwnership(caller)
	}
	return e.auth.TransferOwnership(caller, newOwner)
}

// rollbackStore re-saves the live settings after a persisted change could
// not be applied. Caller holds e.mu.
func (e *Engine) rollbackStore(ctx context.Context, action string) {
	if e.store == nil {
		return
	}
	prev := e.settings.Clone()
	prev.Owner = e.auth.Owner()
	if err := e.store.Save(ctx, prev); err != nil {
		e.logger.ErrorContext(ctx, "settings rollback failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

// afterChange records a successful mutation. Every step is best effort.
func (e *Engine) afterChange(ctx context.Context, caller common.Address, action string, detail map[string]any) {
	e.logger.InfoContext(ctx, "configuration changed",
		slog.String("action", action),
		slog.String("caller", caller.Hex()),
	)

	e.emit(ctx, domain.Event{
		Name: domain.EventConfigChanged,
		ConfigChanged: &domain.ConfigChanged{
			Action: action,
			Caller: caller.Hex(),
			Detail: detail,
		},
	})

	if e.audit != nil {
		row := make(map[string]any, len(detail)+1)
		for k, v := range detail {
			row[k] = v
		}
		row["caller"] = caller.Hex()
		if err := e.audit.Log(ctx, action, row); err != nil {
			e.logger.WarnContext(ctx, "audit log failed",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.notifier == nil {
		return
	}
	var title, msg string
	switch action {
	case ActionTransferOwnership:
		title = "Ownership transferred"
		msg = fmt.Sprintf("%s -> %v", caller.Hex(), detail["new_owner"])
	case ActionRenounceOwnership:
		title = "Ownership renounced"
		msg = fmt.Sprintf("renounced by %s; configuration is now frozen", caller.Hex())
	case ActionSetEnabled:
		title = "Aggregator toggled"
		msg = fmt.Sprintf("enabled=%v by %s", detail["enabled"], caller.Hex())
	default:
		return
	}
	if err := e.notifier.Notify(ctx, action, title, msg); err != nil {
		e.logger.WarnContext(ctx, "admin notification failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

// Bootstrap returns the persisted settings, or saves and returns defaults
// on first start. A nil store returns defaults. Defaults without an owner
// are returned but never saved, so a later start with a configured owner
// still initializes the store.
func Bootstrap(ctx context.Context, store domain.SettingsStore, defaults domain.Settings) (domain.Settings, error) {
	if store == nil {
		return defaults.Clone(), nil
	}
	loaded, err := store.Load(ctx)
	switch {
	case err == nil:
		return loaded, nil
	case errors.Is(err, domain.ErrNotFound):
		if defaults.Owner == (common.Address{}) {
			return defaults.Clone(), nil
		}
		if err := store.Save(ctx, defaults); err != nil {
			return domain.Settings{}, fmt.Errorf("aggregator: save initial settings: %w", err)
		}
		return defaults.Clone(), nil
	default:
		return domain.Settings{}, fmt.Errorf("aggregator: load settings: %w", err)
	}
}
