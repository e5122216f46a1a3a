package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/yieldagg/internal/chain/chaintest"
)

const erc20ABI = `[{"type":"function","name":"balanceOf","stateMutability":"view",
	"inputs":[{"name":"owner","type":"address"}],
	"outputs":[{"name":"","type":"uint256"}]}]`

type callerFunc func(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)

func (f callerFunc) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return f(ctx, msg, block)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_FallsBackToNextEndpoint(t *testing.T) {
	failing := callerFunc(func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, errors.New("connection refused")
	})
	ok := callerFunc(func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
		return []byte{0x01}, nil
	})

	c := newClient([]endpoint{{url: "a", caller: failing}, {url: "b", caller: ok}}, time.Second, discardLogger())
	out, err := c.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, out)
}

func TestClient_AllEndpointsFail(t *testing.T) {
	boom := errors.New("boom")
	failing := callerFunc(func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, boom
	})

	c := newClient([]endpoint{{url: "a", caller: failing}}, time.Second, discardLogger())
	_, err := c.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestClient_CallTimeoutIsApplied(t *testing.T) {
	slow := callerFunc(func(ctx context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	c := newClient([]endpoint{{url: "slow", caller: slow}}, 10*time.Millisecond, discardLogger())
	start := time.Now()
	_, err := c.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestContract_CallDecodesOutputs(t *testing.T) {
	parsed := MustParseABI(erc20ABI)
	token := common.HexToAddress("0x1000000000000000000000000000000000000001")
	user := common.HexToAddress("0x2000000000000000000000000000000000000002")

	fake := chaintest.New()
	fake.RespondFunc(token, parsed, "balanceOf", func(args []any) ([]any, error) {
		if args[0].(common.Address) == user {
			return []any{big.NewInt(1234)}, nil
		}
		return []any{big.NewInt(0)}, nil
	})

	values, err := NewContract(fake, token, parsed).Call(context.Background(), "balanceOf", user)
	require.NoError(t, err)
	bal, err := BigAt(values, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), bal.Int64())

	_, err = BigAt(values, 3)
	assert.Error(t, err)
}

func TestContract_RevertIsAnError(t *testing.T) {
	parsed := MustParseABI(erc20ABI)
	fake := chaintest.New()

	_, err := NewContract(fake, common.Address{}, parsed).Call(context.Background(), "balanceOf", common.Address{})
	require.Error(t, err)
	assert.ErrorIs(t, err, chaintest.ErrReverted)
}
