package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolAddresses are the external endpoints queried by the adapters. The
// gauge is stored but not read by any valuation path.
type ProtocolAddresses struct {
	LendingDataProvider common.Address
	PositionManager     common.Address
	StablePool          common.Address
	StableGauge         common.Address
}

// Settings is the owner-managed configuration of the aggregation engine.
type Settings struct {
	Owner      common.Address
	Protocols  ProtocolAddresses
	PriceFeeds map[common.Address]common.Address // token -> feed

	// CacheDuration is configuration only; nothing enforces it.
	CacheDuration time.Duration
	Enabled       bool
}

// Clone returns a deep copy so snapshots can be handed out without locking.
func (s Settings) Clone() Settings {
	out := s
	out.PriceFeeds = make(map[common.Address]common.Address, len(s.PriceFeeds))
	for k, v := range s.PriceFeeds {
		out.PriceFeeds[k] = v
	}
	return out
}

// Feed returns the registered feed for token, if any.
func (s Settings) Feed(token common.Address) (common.Address, bool) {
	feed, ok := s.PriceFeeds[token]
	if !ok || feed == (common.Address{}) {
		return common.Address{}, false
	}
	return feed, true
}
