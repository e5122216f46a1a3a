// Package oracle resolves token prices from Chainlink-style aggregator feeds.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/chain"
	"github.com/alanyoungcy/yieldagg/internal/domain"
	"github.com/alanyoungcy/yieldagg/internal/fixed"
)

// AggregatorABI is the AggregatorV3Interface subset used here.
var AggregatorABI = chain.MustParseABI(`[{
	"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],
	"outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	]}]`)

// PriceDecimals is the scale of USD feed answers.
const PriceDecimals = domain.USDDecimals

// two256 is 2^256, used to reinterpret a negative int256 answer as uint256.
var two256 = new(big.Int).Lsh(big.NewInt(1), 256)

// FeedRegistry maps tokens to their price feed. domain.Settings implements it.
type FeedRegistry interface {
	Feed(token common.Address) (common.Address, bool)
}

// Round is a decoded latestRoundData response.
type Round struct {
	Feed            common.Address
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// Resolver queries price feeds. It holds no configuration; the registry is
// passed per call so callers control which snapshot is used.
type Resolver struct {
	caller chain.Caller
	logger *slog.Logger
}

// NewResolver creates a Resolver issuing calls through caller.
func NewResolver(caller chain.Caller, logger *slog.Logger) *Resolver {
	return &Resolver{
		caller: caller,
		logger: logger.With(slog.String("component", "oracle")),
	}
}

// LatestRound returns the feed's latest round for token. It fails with
// domain.ErrInvalidToken when no feed is registered and domain.ErrCallFailed
// when the call or decoding fails. No staleness check is applied.
func (r *Resolver) LatestRound(ctx context.Context, registry FeedRegistry, token common.Address) (Round, error) {
	feed, ok := registry.Feed(token)
	if !ok {
		return Round{}, fmt.Errorf("oracle: %s: %w", token.Hex(), domain.ErrInvalidToken)
	}

	values, err := chain.NewContract(r.caller, feed, AggregatorABI).Call(ctx, "latestRoundData")
	if err != nil {
		return Round{}, fmt.Errorf("oracle: feed %s: %w: %w", feed.Hex(), domain.ErrCallFailed, err)
	}

	round := Round{Feed: feed}
	fields := []**big.Int{&round.RoundID, &round.Answer, &round.StartedAt, &round.UpdatedAt, &round.AnsweredInRound}
	for i, dst := range fields {
		v, err := chain.BigAt(values, i)
		if err != nil {
			return Round{}, fmt.Errorf("oracle: feed %s: %w: %w", feed.Hex(), domain.ErrCallFailed, err)
		}
		*dst = v
	}
	return round, nil
}

// ResolvePrice returns the latest answer for token reinterpreted as an
// unsigned value at PriceDecimals. A negative answer wraps modulo 2^256.
func (r *Resolver) ResolvePrice(ctx context.Context, registry FeedRegistry, token common.Address) (fixed.Value, error) {
	round, err := r.LatestRound(ctx, registry, token)
	if err != nil {
		return fixed.Value{}, err
	}

	price := round.Answer
	if price.Sign() < 0 {
		r.logger.WarnContext(ctx, "oracle: negative answer",
			slog.String("token", token.Hex()),
			slog.String("feed", round.Feed.Hex()),
			slog.String("answer", price.String()),
		)
		price = new(big.Int).Add(price, two256)
	}
	return fixed.New(price, PriceDecimals), nil
}
