package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldagg/internal/chain/chaintest"
	"github.com/alanyoungcy/yieldagg/internal/domain"
)

var (
	weth     = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	wethFeed = common.HexToAddress("0x639Fe6ab55C921f74e7fac1ee960C0b6293ba612")
	unknown  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func newTestResolver(fake *chaintest.FakeCaller) *Resolver {
	return NewResolver(fake, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func respondRound(fake *chaintest.FakeCaller, feed common.Address, answer *big.Int) {
	fake.Respond(feed, AggregatorABI, "latestRoundData",
		big.NewInt(110), answer, big.NewInt(1_700_000_000), big.NewInt(1_700_000_100), big.NewInt(110))
}

func registry(feeds map[common.Address]common.Address) domain.Settings {
	return domain.Settings{PriceFeeds: feeds}
}

func TestResolvePrice_UnregisteredTokenIsInvalid(t *testing.T) {
	fake := chaintest.New()
	r := newTestResolver(fake)

	_, err := r.ResolvePrice(context.Background(), registry(nil), unknown)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
	assert.Zero(t, fake.Calls(), "no feed means no external call")
}

func TestResolvePrice_ZeroFeedAddressIsInvalid(t *testing.T) {
	r := newTestResolver(chaintest.New())
	_, err := r.ResolvePrice(context.Background(),
		registry(map[common.Address]common.Address{weth: {}}), weth)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestResolvePrice_ReturnsAnswer(t *testing.T) {
	fake := chaintest.New()
	respondRound(fake, wethFeed, big.NewInt(2000_00000000))

	price, err := newTestResolver(fake).ResolvePrice(context.Background(),
		registry(map[common.Address]common.Address{weth: wethFeed}), weth)
	require.NoError(t, err)
	assert.Equal(t, "200000000000", price.Raw().String())
	assert.Equal(t, PriceDecimals, price.Decimals())
	assert.Equal(t, "2000", price.String())
}

func TestResolvePrice_CallFailurePropagates(t *testing.T) {
	fake := chaintest.New()
	fake.Fail(wethFeed, AggregatorABI, "latestRoundData", errors.New("node down"))

	_, err := newTestResolver(fake).ResolvePrice(context.Background(),
		registry(map[common.Address]common.Address{weth: wethFeed}), weth)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCallFailed)
}

func TestResolvePrice_NegativeAnswerWraps(t *testing.T) {
	fake := chaintest.New()
	respondRound(fake, wethFeed, big.NewInt(-1))

	price, err := newTestResolver(fake).ResolvePrice(context.Background(),
		registry(map[common.Address]common.Address{weth: wethFeed}), weth)
	require.NoError(t, err)

	maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	assert.Equal(t, 0, price.Raw().Cmp(maxU256))
}

func TestLatestRound_DecodesAllFields(t *testing.T) {
	fake := chaintest.New()
	respondRound(fake, wethFeed, big.NewInt(1))

	round, err := newTestResolver(fake).LatestRound(context.Background(),
		registry(map[common.Address]common.Address{weth: wethFeed}), weth)
	require.NoError(t, err)
	assert.Equal(t, wethFeed, round.Feed)
	assert.Equal(t, int64(110), round.RoundID.Int64())
	assert.Equal(t, int64(1_700_000_100), round.UpdatedAt.Int64())
	assert.Equal(t, int64(110), round.AnsweredInRound.Int64())
}
