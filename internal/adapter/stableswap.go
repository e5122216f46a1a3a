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

// StablePoolABI is the stableswap pool subset: LP balance and virtual price.
var StablePoolABI = chain.MustParseABI(`[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"get_virtual_price","stateMutability":"view",
	 "inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]}
]`)

// StableSwapAdapter values the owner's LP tokens at the pool's virtual
// price. The gauge address is configured but rewards are not read, so APR
// and APY stay zero.
type StableSwapAdapter struct {
	base
	caller chain.Caller
}

// NewStableSwapAdapter creates a StableSwapAdapter.
func NewStableSwapAdapter(caller chain.Caller, now Clock, logger *slog.Logger) *StableSwapAdapter {
	return &StableSwapAdapter{
		base:   newBase(domain.ProtocolStableAMM, now, logger),
		caller: caller,
	}
}

// Fetch implements Adapter. Value is lpBalance * virtualPrice / 1e18; a
// failed virtual price call drops the whole position.
func (a *StableSwapAdapter) Fetch(ctx context.Context, cfg domain.Settings, owner common.Address) (domain.Position, bool) {
	pool := chain.NewContract(a.caller, cfg.Protocols.StablePool, StablePoolABI)

	values, err := pool.Call(ctx, "balanceOf", owner)
	if err != nil {
		return a.suppress(ctx, owner, "balanceOf", err)
	}
	lp, err := chain.BigAt(values, 0)
	if err != nil {
		return a.suppress(ctx, owner, "decode balance", err)
	}
	if lp.Sign() <= 0 {
		return domain.Position{}, false
	}

	values, err = pool.Call(ctx, "get_virtual_price")
	if err != nil {
		return a.suppress(ctx, owner, "get_virtual_price", err)
	}
	vp, err := chain.BigAt(values, 0)
	if err != nil {
		return a.suppress(ctx, owner, "decode virtual price", err)
	}

	return domain.Position{
		Owner:      owner,
		Protocol:   domain.ProtocolStableAMM,
		Assets:     []common.Address{pool.Address()},
		Amounts:    []*big.Int{new(big.Int).Set(lp)},
		APR:        fixed.Zero(domain.RateDecimals),
		APY:        fixed.Zero(domain.RateDecimals),
		AccruedUSD: fixed.New(fixed.MulDiv(lp, vp, 18), domain.USDDecimals),
		UpdatedAt:  a.now(),
	}, true
}
