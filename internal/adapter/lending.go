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

// DataProviderABI is the pool data provider subset used by LendingAdapter.
var DataProviderABI = chain.MustParseABI(`[{
	"type":"function","name":"getUserReserveData","stateMutability":"view",
	"inputs":[{"name":"asset","type":"address"},{"name":"user","type":"address"}],
	"outputs":[
		{"name":"currentATokenBalance","type":"uint256"},
		{"name":"currentStableDebt","type":"uint256"},
		{"name":"currentVariableDebt","type":"uint256"},
		{"name":"principalStableDebt","type":"uint256"},
		{"name":"scaledVariableDebt","type":"uint256"},
		{"name":"stableBorrowRate","type":"uint256"},
		{"name":"liquidityRate","type":"uint256"},
		{"name":"stableRateLastUpdated","type":"uint40"},
		{"name":"usageAsCollateralEnabled","type":"bool"}
	]}]`)

// Output indexes of getUserReserveData.
const (
	reserveATokenBalance = 0
	reserveLiquidityRate = 6
)

// LendingAdapter reads the owner's supplied balance of a single reference
// asset from the lending market's data provider.
type LendingAdapter struct {
	base
	caller chain.Caller
	prices PriceSource
	asset  common.Address
}

// NewLendingAdapter creates a LendingAdapter valuing asset through prices.
func NewLendingAdapter(caller chain.Caller, prices PriceSource, asset common.Address, now Clock, logger *slog.Logger) *LendingAdapter {
	return &LendingAdapter{
		base:   newBase(domain.ProtocolLending, now, logger),
		caller: caller,
		prices: prices,
		asset:  asset,
	}
}

// Fetch implements Adapter. The USD value is balance * price / 1e18. A
// failed price lookup values the position at zero instead of dropping it.
// APR and APY both carry the raw liquidity rate; no compounding is applied.
func (a *LendingAdapter) Fetch(ctx context.Context, cfg domain.Settings, owner common.Address) (domain.Position, bool) {
	provider := chain.NewContract(a.caller, cfg.Protocols.LendingDataProvider, DataProviderABI)
	values, err := provider.Call(ctx, "getUserReserveData", a.asset, owner)
	if err != nil {
		return a.suppress(ctx, owner, "getUserReserveData", err)
	}
	balance, err := chain.BigAt(values, reserveATokenBalance)
	if err != nil {
		return a.suppress(ctx, owner, "decode balance", err)
	}
	rate, err := chain.BigAt(values, reserveLiquidityRate)
	if err != nil {
		return a.suppress(ctx, owner, "decode liquidity rate", err)
	}
	if balance.Sign() <= 0 {
		return domain.Position{}, false
	}

	price := new(big.Int)
	if p, err := a.prices.ResolvePrice(ctx, cfg, a.asset); err != nil {
		a.logger.DebugContext(ctx, "adapter: price unavailable, valuing at zero",
			slog.String("asset", a.asset.Hex()),
			slog.String("error", err.Error()),
		)
	} else {
		price = p.Raw()
	}

	return domain.Position{
		Owner:      owner,
		Protocol:   domain.ProtocolLending,
		Assets:     []common.Address{a.asset},
		Amounts:    []*big.Int{new(big.Int).Set(balance)},
		APR:        fixed.New(rate, domain.RateDecimals),
		APY:        fixed.New(rate, domain.RateDecimals),
		AccruedUSD: fixed.New(fixed.MulDiv(balance, price, 18), domain.USDDecimals),
		UpdatedAt:  a.now(),
	}, true
}
