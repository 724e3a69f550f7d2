// Package state provides read-only snapshots of the last committed
// ledger state for proposal verification, and a writer used to seed
// and advance that state.
package state

import (
	"errors"
	"math/bits"
	"sort"

	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
)

var (
	// ErrUnknownEpoch is returned when no epoch covers a height.
	ErrUnknownEpoch = errors.New("state: no epoch covers height")

	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("state: store closed")

	// ErrPowerOverflow is returned when an epoch's voting powers do
	// not sum within a uint64.
	ErrPowerOverflow = errors.New("state: total voting power overflows")
)

// Snapshot is a consistent, read-only view of committed state. It must
// be discarded after use.
type Snapshot interface {
	// LastHeight is the height of the last committed block.
	LastHeight() (uint64, error)
	// Epoch returns the epoch that height belongs to.
	Epoch(height uint64) (uint64, error)
	// TotalVotingPower is the sum of the epoch's validator powers.
	TotalVotingPower(epoch uint64) (uint64, error)
	// Validator looks up an active validator of the epoch.
	Validator(epoch uint64, addr types.ValidatorAddress) (types.Validator, bool, error)
	// Balance returns owner's balance of token. Missing accounts hold 0.
	Balance(token, owner types.Address) (uint64, error)
	// TxQueue returns the wrappers included in the last block, in
	// inclusion order.
	TxQueue() ([]transaction.WrapperTx, error)
	Discard()
}

// Writer mutates committed state. Proposal verification never uses it.
type Writer interface {
	SetLastHeight(height uint64) error
	// SetEpoch records that epoch begins at startHeight.
	SetEpoch(startHeight, epoch uint64) error
	SetValidators(epoch uint64, validators []types.Validator) error
	SetBalance(token, owner types.Address, amount uint64) error
	SetTxQueue(queue []transaction.WrapperTx) error
}

// Store is a source of snapshots.
type Store interface {
	Snapshot() (Snapshot, error)
	Close() error
}

// ReadWriteStore is a Store that can also be written.
type ReadWriteStore interface {
	Store
	Writer
}

// EpochStart marks the first height of an epoch.
type EpochStart struct {
	Height uint64 `cramberry:"1"`
	Epoch  uint64 `cramberry:"2"`
}

// epochAt returns the epoch of the last start at or below height.
// starts must be sorted by height.
func epochAt(starts []EpochStart, height uint64) (uint64, bool) {
	i := sort.Search(len(starts), func(i int) bool { return starts[i].Height > height })
	if i == 0 {
		return 0, false
	}
	return starts[i-1].Epoch, true
}

// insertEpoch adds or replaces the start at e.Height, keeping starts sorted.
func insertEpoch(starts []EpochStart, e EpochStart) []EpochStart {
	i := sort.Search(len(starts), func(i int) bool { return starts[i].Height >= e.Height })
	if i < len(starts) && starts[i].Height == e.Height {
		starts[i] = e
		return starts
	}
	starts = append(starts, EpochStart{})
	copy(starts[i+1:], starts[i:])
	starts[i] = e
	return starts
}

func totalPower(vals []types.Validator) (uint64, error) {
	var total, carry uint64
	for _, v := range vals {
		if total, carry = bits.Add64(total, v.Power, 0); carry != 0 {
			return 0, ErrPowerOverflow
		}
	}
	return total, nil
}
