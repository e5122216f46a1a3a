package adapter

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/chain"
	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
)

// PositionManagerABI is the ERC-721 subset of the position manager.
var PositionManagerABI = chain.MustParseABI(`[{
	"type":"function","name":"balanceOf","stateMutability":"view",
	"inputs":[{"name":"owner","type":"address"}],
	"outputs":[{"name":"","type":"uint256"}]}]`)

// ConcentratedAdapter detects concentrated-liquidity position NFTs. It does
// not enumerate or value them: holders get a placeholder position with two
// zero assets and zero amounts, rates and accrual.
type ConcentratedAdapter struct {
	base
	caller chain.Caller
}

// NewConcentratedAdapter creates a ConcentratedAdapter.
func NewConcentratedAdapter(caller chain.Caller, now Clock, logger *slog.Logger) *ConcentratedAdapter {
	return &ConcentratedAdapter{
		base:   newBase(domain.ProtocolConcentratedAMM, now, logger),
		caller: caller,
	}
}

// Fetch implements Adapter.
func (a *ConcentratedAdapter) Fetch(ctx context.Context, cfg domain.Settings, owner common.Address) (domain.Position, bool) {
	manager := chain.NewContract(a.caller, cfg.Protocols.PositionManager, PositionManagerABI)
	values, err := manager.Call(ctx, "balanceOf", owner)
	if err != nil {
		return a.suppress(ctx, owner, "balanceOf", err)
	}
	count, err := chain.BigAt(values, 0)
	if err != nil {
		return a.suppress(ctx, owner, "decode balance", err)
	}
	if count.Sign() <= 0 {
		return domain.Position{}, false
	}

	return domain.Position{
		Owner:      owner,
		Protocol:   domain.ProtocolConcentratedAMM,
		Assets:     []common.Address{{}, {}},
		Amounts:    []*big.Int{new(big.Int), new(big.Int)},
		APR:        fixed.Zero(domain.RateDecimals),
		APY:        fixed.Zero(domain.RateDecimals),
		AccruedUSD: fixed.Zero(domain.USDDecimals),
		UpdatedAt:  a.now(),
	}, true
}
