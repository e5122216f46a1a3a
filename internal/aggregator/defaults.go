package aggregator

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

// Arbitrum One deployment defaults.
var (
	DefaultLendingDataProvider = common.HexToAddress("0x145dE30c929a065582Bfc8e9C1a8B0b8C3c3b5C3")
	DefaultPositionManager     = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	DefaultStablePool          = common.HexToAddress("0x960ea3e3C7FB317332d990873d354E18d7645590")
	DefaultStableGauge         = common.HexToAddress("0x97E2768e8E73511cA874545DC5Ff8067eB19B787")

	WETH = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	USDC = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")

	DefaultWETHFeed = common.HexToAddress("0x639Fe6ab55C921f74e7fac1ee960C0b6293ba612")
	DefaultUSDCFeed = common.HexToAddress("0x50834F3163758fcC1Df9973b6e91f0F0F0434aD3")
)

// DefaultCacheDuration is stored for clients; the engine does not cache.
const DefaultCacheDuration = 30 * time.Second

// DefaultSettings returns the initial configuration for owner.
func DefaultSettings(owner common.Address) domain.Settings {
	return domain.Settings{
		Owner: owner,
		Protocols: domain.ProtocolAddresses{
			LendingDataProvider: DefaultLendingDataProvider,
			PositionManager:     DefaultPositionManager,
			StablePool:          DefaultStablePool,
			StableGauge:         DefaultStableGauge,
		},
		PriceFeeds: map[common.Address]common.Address{
			WETH: DefaultWETHFeed,
			USDC: DefaultUSDCFeed,
		},
		CacheDuration: DefaultCacheDuration,
		Enabled:       true,
	}
}
