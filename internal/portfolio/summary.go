// Package portfolio reduces positions to a PortfolioSummary.
package portfolio

import (
	"math/big"
	"time"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
)

// Summarize folds positions in a single pass. TotalValue and TotalAccrued
// both sum AccruedUSD. WeightedAPY is sum(value*apy)/sum(value) over the
// positions whose value and apy are both strictly positive, and zero when
// none qualify. LastUpdated is now, whatever the positions' own timestamps.
func Summarize(positions []domain.Position, now time.Time) domain.PortfolioSummary {
	total := new(big.Int)
	num := new(big.Int)
	den := new(big.Int)

	for _, p := range positions {
		value := p.AccruedUSD.Raw()
		total.Add(total, value)

		apy := p.APY.Raw()
		if value.Sign() > 0 && apy.Sign() > 0 {
			num.Add(num, new(big.Int).Mul(value, apy))
			den.Add(den, value)
		}
	}

	weighted := new(big.Int)
	if den.Sign() != 0 {
		weighted.Quo(num, den)
	}

	return domain.PortfolioSummary{
		TotalValue:   fixed.New(total, domain.USDDecimals),
		TotalAccrued: fixed.New(total, domain.USDDecimals),
		WeightedAPY:  fixed.New(weighted, domain.RateDecimals),
		LastUpdated:  now,
	}
}

// PositionsByProtocol counts positions per protocol tag.
func PositionsByProtocol(positions []domain.Position) map[domain.Protocol]int {
	out := make(map[domain.Protocol]int, len(domain.Protocols))
	for _, p := range positions {
		out[p.Protocol]++
	}
	return out
}
