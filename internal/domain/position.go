package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/fixed"
)

// Fixed-point scales used throughout the engine.
const (
	RateDecimals int32 = 18 // APR / APY
	USDDecimals  int32 = 8  // accrued and total USD values
)

// Protocol tags the venue a position was read from. The numeric values are
// part of the external contract and also fix result ordering.
type Protocol uint8

const (
	ProtocolLending         Protocol = 0
	ProtocolConcentratedAMM Protocol = 1
	ProtocolStableAMM       Protocol = 2
)

// Protocols lists every supported protocol in result order.
var Protocols = []Protocol{ProtocolLending, ProtocolConcentratedAMM, ProtocolStableAMM}

func (p Protocol) String() string {
	switch p {
	case ProtocolLending:
		return "lending"
	case ProtocolConcentratedAMM:
		return "concentrated_amm"
	case ProtocolStableAMM:
		return "stable_amm"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// Valid reports whether p is a known protocol tag.
func (p Protocol) Valid() bool {
	return p <= ProtocolStableAMM
}

// ParseProtocol accepts either the numeric tag or the String form.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "lending":
		return ProtocolLending, nil
	case "1", "concentrated_amm":
		return ProtocolConcentratedAMM, nil
	case "2", "stable_amm":
		return ProtocolStableAMM, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidProtocol, s)
}

// Position is a snapshot of one owner's holdings in one protocol at query
// time. Assets and Amounts are index-aligned; amounts are in each asset's
// smallest unit.
type Position struct {
	Owner      common.Address
	Protocol   Protocol
	Assets     []common.Address
	Amounts    []*big.Int
	APR        fixed.Value // RateDecimals
	APY        fixed.Value // RateDecimals
	AccruedUSD fixed.Value // USDDecimals, may be negative
	UpdatedAt  time.Time
}

// PortfolioSummary aggregates a set of positions. TotalValue and
// TotalAccrued are both the sum of AccruedUSD.
type PortfolioSummary struct {
	TotalValue   fixed.Value // USDDecimals
	TotalAccrued fixed.Value // USDDecimals
	WeightedAPY  fixed.Value // RateDecimals
	LastUpdated  time.Time
}

// ZeroSummary is returned when the engine is disabled.
func ZeroSummary() PortfolioSummary {
	return PortfolioSummary{
		TotalValue:   fixed.Zero(USDDecimals),
		TotalAccrued: fixed.Zero(USDDecimals),
		WeightedAPY:  fixed.Zero(RateDecimals),
	}
}

// WalletPortfolio is one owner's positions with their summary.
type WalletPortfolio struct {
	Owner     common.Address   `json:"owner"`
	Positions []Position       `json:"positions"`
	Summary   PortfolioSummary `json:"summary"`
}

// WalletBreakdown is the multi-wallet view: per-wallet portfolios plus a
// summary over every position of every wallet.
type WalletBreakdown struct {
	Wallets    []WalletPortfolio `json:"wallets"`
	Aggregated PortfolioSummary  `json:"aggregated"`
}
