package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MustParseABI parses a JSON ABI definition and panics on malformed input.
// Intended for package-level ABI constants.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi: %v", err))
	}
	return parsed
}

// Contract binds an ABI to an address for read-only calls.
type Contract struct {
	abi     abi.ABI
	address common.Address
	caller  Caller
}

// NewContract returns a Contract calling address through caller.
func NewContract(caller Caller, address common.Address, parsed abi.ABI) *Contract {
	return &Contract{abi: parsed, address: address, caller: caller}
}

// Address returns the bound contract address.
func (c *Contract) Address() common.Address { return c.address }

// Call packs method(args...), performs an eth_call at the latest block and
// returns the decoded outputs in declaration order.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	to := c.address
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, to.Hex(), err)
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s from %s: %w", method, to.Hex(), err)
	}
	return values, nil
}

// BigAt returns values[i] as a *big.Int. ABI integer types wider than 64 bits
// (and odd widths such as uint40 or uint80) decode to *big.Int.
func BigAt(values []any, i int) (*big.Int, error) {
	if i < 0 || i >= len(values) {
		return nil, fmt.Errorf("chain: output %d out of range (%d values)", i, len(values))
	}
	v, ok := values[i].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("chain: output %d is %T, want *big.Int", i, values[i])
	}
	return v, nil
}
