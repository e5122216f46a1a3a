// Package ownable is the single-owner permission primitive that gates the
// engine's configuration setters.
package ownable

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/yieldagg/internal/domain"
)

// Ownable holds the current owner. A renounced Ownable has the zero owner
// and rejects every caller.
type Ownable struct {
	mu    sync.RWMutex
	owner common.Address
}

// New returns an Ownable owned by owner. A zero owner is rejected; the zero
// Ownable value is usable and starts renounced.
func New(owner common.Address) (*Ownable, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("ownable: %w: zero address", domain.ErrInvalidOwner)
	}
	return &Ownable{owner: owner}, nil
}

// Owner returns the current owner, the zero address once renounced.
func (o *Ownable) Owner() common.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

// OnlyOwner returns ErrUnauthorizedAccount unless caller is the owner.
func (o *Ownable) OnlyOwner(caller common.Address) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.check(caller)
}

// TransferOwnership hands ownership to newOwner.
func (o *Ownable) TransferOwnership(caller, newOwner common.Address) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.check(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("ownable: %w: zero address", domain.ErrInvalidOwner)
	}
	o.owner = newOwner
	return nil
}

// RenounceOwnership leaves the instance without an owner. Gated setters are
// unusable afterwards.
func (o *Ownable) RenounceOwnership(caller common.Address) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.check(caller); err != nil {
		return err
	}
	o.owner = common.Address{}
	return nil
}

// Restore replaces the owner without a gate. It is used when loading
// persisted state at startup; the zero address restores a renounced state.
func (o *Ownable) Restore(owner common.Address) {
	o.mu.Lock()
	o.owner = owner
	o.mu.Unlock()
}

func (o *Ownable) check(caller common.Address) error {
	if o.owner == (common.Address{}) || caller != o.owner {
		return fmt.Errorf("ownable: %w: %s", domain.ErrUnauthorizedAccount, caller.Hex())
	}
	return nil
}
