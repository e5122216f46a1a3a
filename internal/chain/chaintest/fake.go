// Package chaintest provides an in-memory chain.Caller for tests. Responses
// are registered per (contract, method) and ABI-encoded exactly as a node
// would return them.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrReverted is returned for calls with no registered response.
var ErrReverted = errors.New("execution reverted")

// RespondFunc computes outputs from the decoded call arguments.
type RespondFunc func(args []any) ([]any, error)

type key struct {
	to       common.Address
	selector [4]byte
}

type route struct {
	method abi.Method
	fn     RespondFunc
}

// FakeCaller implements chain.Caller.
type FakeCaller struct {
	mu     sync.Mutex
	routes map[key]route
	calls  map[common.Address]int
	total  int
}

// New returns an empty FakeCaller; every call reverts until routed.
func New() *FakeCaller {
	return &FakeCaller{
		routes: make(map[key]route),
		calls:  make(map[common.Address]int),
	}
}

// Respond makes method on contract `to` always return outputs.
func (f *FakeCaller) Respond(to common.Address, parsed abi.ABI, method string, outputs ...any) {
	f.RespondFunc(to, parsed, method, func([]any) ([]any, error) { return outputs, nil })
}

// Fail makes method on contract `to` return err.
func (f *FakeCaller) Fail(to common.Address, parsed abi.ABI, method string, err error) {
	f.RespondFunc(to, parsed, method, func([]any) ([]any, error) { return nil, err })
}

// RespondFunc routes method on contract `to` to fn.
func (f *FakeCaller) RespondFunc(to common.Address, parsed abi.ABI, method string, fn RespondFunc) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic(fmt.Sprintf("chaintest: method %q not in abi", method))
	}
	var sel [4]byte
	copy(sel[:], m.ID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[key{to: to, selector: sel}] = route{method: m, fn: fn}
}

// CallContract implements chain.Caller.
func (f *FakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, ErrReverted
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])

	f.mu.Lock()
	f.total++
	f.calls[*msg.To]++
	r, ok := f.routes[key{to: *msg.To, selector: sel}]
	f.mu.Unlock()
	if !ok {
		return nil, ErrReverted
	}

	args, err := r.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("chaintest: unpack %s args: %w", r.method.Name, err)
	}
	outputs, err := r.fn(args)
	if err != nil {
		return nil, err
	}
	return r.method.Outputs.Pack(outputs...)
}

// Calls returns the total number of calls received.
func (f *FakeCaller) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// CallsTo returns the number of calls addressed to `to`.
func (f *FakeCaller) CallsTo(to common.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[to]
}
