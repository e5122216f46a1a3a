package portfolio

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pos(p domain.Protocol, value, apy int64) domain.Position {
	return domain.Position{
		Protocol:   p,
		APR:        fixed.FromInt64(apy, domain.RateDecimals),
		APY:        fixed.FromInt64(apy, domain.RateDecimals),
		AccruedUSD: fixed.FromInt64(value, domain.USDDecimals),
		UpdatedAt:  now.Add(-time.Hour),
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, now)
	assert.True(t, s.TotalValue.IsZero())
	assert.True(t, s.TotalAccrued.IsZero())
	assert.True(t, s.WeightedAPY.IsZero())
	assert.Equal(t, now, s.LastUpdated)
	assert.Equal(t, domain.USDDecimals, s.TotalValue.Decimals())
	assert.Equal(t, domain.RateDecimals, s.WeightedAPY.Decimals())
}

func TestSummarize_WeightedAPY(t *testing.T) {
	positions := []domain.Position{
		pos(domain.ProtocolLending, 100, 4e16),   // 4%
		pos(domain.ProtocolStableAMM, 300, 8e16), // 8%
	}
	s := Summarize(positions, now)

	assert.Equal(t, "400", s.TotalValue.Raw().String())
	assert.True(t, s.TotalValue.Equal(s.TotalAccrued))
	// (100*4 + 300*8) / 400 = 7%
	assert.Equal(t, big.NewInt(7e16).String(), s.WeightedAPY.Raw().String())
}

func TestSummarize_IgnoresNonQualifyingInWeights(t *testing.T) {
	positions := []domain.Position{
		pos(domain.ProtocolLending, 200, 5e16),
		pos(domain.ProtocolConcentratedAMM, 0, 0),
		pos(domain.ProtocolStableAMM, 1000, 0), // value but no apy
		pos(domain.ProtocolLending, -50, 9e16), // negative value
	}
	s := Summarize(positions, now)

	assert.Equal(t, "1150", s.TotalValue.Raw().String())
	assert.Equal(t, big.NewInt(5e16).String(), s.WeightedAPY.Raw().String())
}

func TestSummarize_NoQualifyingPositionsNeverDivides(t *testing.T) {
	positions := []domain.Position{
		pos(domain.ProtocolConcentratedAMM, 0, 0),
		pos(domain.ProtocolStableAMM, 500, 0),
	}
	s := Summarize(positions, now)
	assert.True(t, s.WeightedAPY.IsZero())
	assert.Equal(t, "500", s.TotalAccrued.Raw().String())
}

func TestSummarize_TruncatesTowardZero(t *testing.T) {
	positions := []domain.Position{
		pos(domain.ProtocolLending, 1, 1),
		pos(domain.ProtocolLending, 2, 2),
	}
	// (1*1 + 2*2) / 3 = 1
	assert.Equal(t, "1", Summarize(positions, now).WeightedAPY.Raw().String())
}

func TestPositionsByProtocol(t *testing.T) {
	counts := PositionsByProtocol([]domain.Position{
		pos(domain.ProtocolLending, 1, 1),
		pos(domain.ProtocolLending, 1, 1),
		pos(domain.ProtocolStableAMM, 1, 1),
	})
	assert.Equal(t, 2, counts[domain.ProtocolLending])
	assert.Equal(t, 0, counts[domain.ProtocolConcentratedAMM])
	assert.Equal(t, 1, counts[domain.ProtocolStableAMM])
}
