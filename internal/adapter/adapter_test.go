package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldagg/internal/chain/chaintest"
	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/oracle"
)

var (
	weth     = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	wethFeed = common.HexToAddress("0x639Fe6ab55C921f74e7fac1ee960C0b6293ba612")
	provider = common.HexToAddress("0x145dE30c929a065582Bfc8e9C1a8B0b8C3c3b5C3")
	manager  = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	pool     = common.HexToAddress("0x960ea3e3C7FB317332d990873d354E18d7645590")
	userY    = common.HexToAddress("0x00000000000000000000000000000000000000b1")

	fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testClock() time.Time { return fixedNow }

func testSettings() domain.Settings {
	return domain.Settings{
		Protocols: domain.ProtocolAddresses{
			LendingDataProvider: provider,
			PositionManager:     manager,
			StablePool:          pool,
		},
		PriceFeeds: map[common.Address]common.Address{weth: wethFeed},
		Enabled:    true,
	}
}

func reserveData(balance, liquidityRate *big.Int) []any {
	z := new(big.Int)
	return []any{balance, z, z, z, z, z, liquidityRate, big.NewInt(1_700_000_000), true}
}

func respondPrice(fake *chaintest.FakeCaller, answer int64) {
	fake.Respond(wethFeed, oracle.AggregatorABI, "latestRoundData",
		big.NewInt(1), big.NewInt(answer), big.NewInt(0), big.NewInt(0), big.NewInt(1))
}

func newLending(fake *chaintest.FakeCaller) *LendingAdapter {
	return NewLendingAdapter(fake, oracle.NewResolver(fake, testLogger()), weth, testClock, testLogger())
}

func TestLending_ScenarioSmallBalance(t *testing.T) {
	fake := chaintest.New()
	fake.Respond(provider, DataProviderABI, "getUserReserveData",
		reserveData(big.NewInt(1000), big.NewInt(50000000000000000))...)
	respondPrice(fake, 2000_00000000)

	pos, ok := newLending(fake).Fetch(context.Background(), testSettings(), userY)
	require.True(t, ok)

	assert.Equal(t, domain.ProtocolLending, pos.Protocol)
	assert.Equal(t, userY, pos.Owner)
	assert.Equal(t, []common.Address{weth}, pos.Assets)
	require.Len(t, pos.Amounts, 1)
	assert.Equal(t, int64(1000), pos.Amounts[0].Int64())
	assert.Equal(t, "50000000000000000", pos.APY.Raw().String())
	assert.True(t, pos.APR.Equal(pos.APY))
	// 1000 * 2000e8 / 1e18 truncates to zero.
	assert.True(t, pos.AccruedUSD.IsZero())
	assert.Equal(t, domain.USDDecimals, pos.AccruedUSD.Decimals())
	assert.Equal(t, fixedNow, pos.UpdatedAt)
}

func TestLending_ValuesOneWholeToken(t *testing.T) {
	fake := chaintest.New()
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	fake.Respond(provider, DataProviderABI, "getUserReserveData",
		reserveData(oneEther, big.NewInt(0))...)
	respondPrice(fake, 2000_00000000)

	pos, ok := newLending(fake).Fetch(context.Background(), testSettings(), userY)
	require.True(t, ok)
	assert.Equal(t, "200000000000", pos.AccruedUSD.Raw().String())
	assert.Equal(t, "2000", pos.AccruedUSD.String())
}

func TestLending_PriceFailureValuesAtZero(t *testing.T) {
	fake := chaintest.New()
	oneEther := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	fake.Respond(provider, DataProviderABI, "getUserReserveData",
		reserveData(oneEther, big.NewInt(7))...)
	fake.Fail(wethFeed, oracle.AggregatorABI, "latestRoundData", errors.New("stale"))

	a := newLending(fake)
	pos, ok := a.Fetch(context.Background(), testSettings(), userY)
	require.True(t, ok, "a price failure must not drop the position")
	assert.True(t, pos.AccruedUSD.IsZero())
	assert.Zero(t, a.Failures())
}

func TestLending_ZeroBalanceIsAbsent(t *testing.T) {
	fake := chaintest.New()
	fake.Respond(provider, DataProviderABI, "getUserReserveData",
		reserveData(big.NewInt(0), big.NewInt(50000000000000000))...)

	_, ok := newLending(fake).Fetch(context.Background(), testSettings(), userY)
	assert.False(t, ok)
	assert.Zero(t, fake.CallsTo(wethFeed), "no price lookup without a balance")
}

func TestLending_CallFailureIsSuppressedAndCounted(t *testing.T) {
	fake := chaintest.New()
	fake.Fail(provider, DataProviderABI, "getUserReserveData", errors.New("boom"))

	a := newLending(fake)
	_, ok := a.Fetch(context.Background(), testSettings(), userY)
	assert.False(t, ok)
	assert.Equal(t, int64(1), a.Failures())
}

func TestConcentrated_HolderGetsPlaceholder(t *testing.T) {
	fake := chaintest.New()
	fake.Respond(manager, PositionManagerABI, "balanceOf", big.NewInt(3))

	pos, ok := NewConcentratedAdapter(fake, testClock, testLogger()).
		Fetch(context.Background(), testSettings(), userY)
	require.True(t, ok)
	assert.Equal(t, domain.ProtocolConcentratedAMM, pos.Protocol)
	assert.Equal(t, []common.Address{{}, {}}, pos.Assets)
	require.Len(t, pos.Amounts, 2)
	assert.Zero(t, pos.Amounts[0].Sign())
	assert.Zero(t, pos.Amounts[1].Sign())
	assert.True(t, pos.AccruedUSD.IsZero())
	assert.True(t, pos.APY.IsZero())
}

func TestConcentrated_NoTokensIsAbsent(t *testing.T) {
	fake := chaintest.New()
	fake.Respond(manager, PositionManagerABI, "balanceOf", big.NewInt(0))

	_, ok := NewConcentratedAdapter(fake, testClock, testLogger()).
		Fetch(context.Background(), testSettings(), userY)
	assert.False(t, ok)
}

func TestConcentrated_RevertIsAbsent(t *testing.T) {
	a := NewConcentratedAdapter(chaintest.New(), testClock, testLogger())
	_, ok := a.Fetch(context.Background(), testSettings(), userY)
	assert.False(t, ok)
	assert.Equal(t, int64(1), a.Failures())
}

func TestStableSwap_ValuesAtVirtualPrice(t *testing.T) {
	fake := chaintest.New()
	lp := new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	vp := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	vp.Add(vp, new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)) // 1.01
	fake.Respond(pool, StablePoolABI, "balanceOf", lp)
	fake.Respond(pool, StablePoolABI, "get_virtual_price", vp)

	pos, ok := NewStableSwapAdapter(fake, testClock, testLogger()).
		Fetch(context.Background(), testSettings(), userY)
	require.True(t, ok)
	assert.Equal(t, domain.ProtocolStableAMM, pos.Protocol)
	assert.Equal(t, []common.Address{pool}, pos.Assets)
	assert.Equal(t, 0, pos.Amounts[0].Cmp(lp))
	// 5e18 * 1.01e18 / 1e18 = 5.05e18 raw units at 8 decimals.
	assert.Equal(t, "5050000000000000000", pos.AccruedUSD.Raw().String())
	assert.True(t, pos.APR.IsZero())
}

func TestStableSwap_VirtualPriceFailureDropsPosition(t *testing.T) {
	fake := chaintest.New()
	fake.Respond(pool, StablePoolABI, "balanceOf", big.NewInt(10))
	fake.Fail(pool, StablePoolABI, "get_virtual_price", errors.New("reverted"))

	a := NewStableSwapAdapter(fake, testClock, testLogger())
	_, ok := a.Fetch(context.Background(), testSettings(), userY)
	assert.False(t, ok)
	assert.Equal(t, int64(1), a.Failures())
}

func TestStableSwap_ZeroBalanceSkipsVirtualPrice(t *testing.T) {
	fake := chaintest.New()
	fake.Respond(pool, StablePoolABI, "balanceOf", big.NewInt(0))

	_, ok := NewStableSwapAdapter(fake, testClock, testLogger()).
		Fetch(context.Background(), testSettings(), userY)
	assert.False(t, ok)
	assert.Equal(t, 1, fake.CallsTo(pool))
}
