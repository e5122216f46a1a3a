// Package chain provides the read-only contract call transport used by the
// price oracle and protocol adapters. Calls go through go-ethereum's
// ethclient with ordered endpoint fallback and a bounded per-call timeout.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
)

// defaultCallTimeout bounds a single eth_call when the config leaves it unset.
const defaultCallTimeout = 5 * time.Second

// Caller issues read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ClientConfig holds the RPC endpoints and call limits.
type ClientConfig struct {
	// URLs are tried in order; the first is primary, the rest are fallbacks.
	URLs []string
	// ChainID, when non-zero, is verified against every endpoint at dial time.
	ChainID int64
	// CallTimeout bounds each eth_call attempt against one endpoint.
	CallTimeout time.Duration
}

type endpoint struct {
	url    string
	caller Caller
	close  func()
}

// Client is a Caller that fans a call out over several RPC endpoints until
// one answers.
type Client struct {
	endpoints   []endpoint
	callTimeout time.Duration
	logger      *slog.Logger
}

// Dial connects to every configured endpoint. Endpoints that fail to dial or
// report the wrong chain are skipped with a warning; Dial fails only when no
// endpoint is usable.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.New("chain: at least one rpc url is required")
	}
	logger = logger.With(slog.String("component", "chain"))

	var eps []endpoint
	for _, url := range cfg.URLs {
		ec, err := ethclient.DialContext(ctx, url)
		if err != nil {
			logger.WarnContext(ctx, "chain: dial failed",
				slog.String("url", url),
				slog.String("error", err.Error()),
			)
			continue
		}
		if cfg.ChainID != 0 {
			id, err := ec.ChainID(ctx)
			if err != nil || id.Int64() != cfg.ChainID {
				got := "unknown"
				if id != nil {
					got = id.String()
				}
				logger.WarnContext(ctx, "chain: endpoint rejected",
					slog.String("url", url),
					slog.String("chain_id", got),
					slog.Int64("want_chain_id", cfg.ChainID),
				)
				ec.Close()
				continue
			}
		}
		eps = append(eps, endpoint{url: url, caller: ec, close: ec.Close})
	}
	if len(eps) == 0 {
		return nil, fmt.Errorf("chain: no usable rpc endpoint out of %d", len(cfg.URLs))
	}

	logger.InfoContext(ctx, "chain: connected", slog.Int("endpoints", len(eps)))
	return newClient(eps, cfg.CallTimeout, logger), nil
}

func newClient(eps []endpoint, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{endpoints: eps, callTimeout: timeout, logger: logger}
}

// CallContract executes msg against each endpoint in order and returns the
// first successful result. Each attempt is bounded by the call timeout.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var lastErr error
	for _, ep := range c.endpoints {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := c.callOne(ctx, ep, msg, blockNumber)
		if err == nil {
			return out, nil
		}
		lastErr = err
		c.logger.DebugContext(ctx, "chain: call failed",
			slog.String("url", ep.url),
			slog.String("error", err.Error()),
		)
	}
	return nil, fmt.Errorf("chain: all rpc endpoints failed: %w", lastErr)
}

func (c *Client) callOne(ctx context.Context, ep endpoint, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return ep.caller.CallContract(ctx, msg, blockNumber)
}

// Close releases every endpoint connection.
func (c *Client) Close() {
	for _, ep := range c.endpoints {
		if ep.close != nil {
			ep.close()
		}
	}
}

var _ Caller = (*Client)(nil)
var _ Caller = (*ethclient.Client)(nil)
