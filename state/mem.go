package state

import (
	"fmt"
	"sync"

	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
)

var _ ReadWriteStore = (*MemStore)(nil)

type balanceKey struct {
	token types.Address
	owner types.Address
}

type memState struct {
	lastHeight uint64
	epochs     []EpochStart
	validators map[uint64][]types.Validator
	balances   map[balanceKey]uint64
	queue      []transaction.WrapperTx
}

func (s *memState) clone() *memState {
	c := &memState{
		lastHeight: s.lastHeight,
		epochs:     append([]EpochStart(nil), s.epochs...),
		validators: make(map[uint64][]types.Validator, len(s.validators)),
		balances:   make(map[balanceKey]uint64, len(s.balances)),
		queue:      append([]transaction.WrapperTx(nil), s.queue...),
	}
	for e, vals := range s.validators {
		c.validators[e] = append([]types.Validator(nil), vals...)
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// MemStore is an in-memory store. Snapshots are copies, so writes
// never show through a snapshot taken earlier.
type MemStore struct {
	mu     sync.RWMutex
	state  *memState
	closed bool
}

// NewMemStore returns an empty store at height 0.
func NewMemStore() *MemStore {
	return &MemStore{state: &memState{
		validators: make(map[uint64][]types.Validator),
		balances:   make(map[balanceKey]uint64),
	}}
}

func (m *MemStore) Snapshot() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return &memSnapshot{s: m.state.clone()}, nil
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MemStore) update(fn func(s *memState)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	fn(m.state)
	return nil
}

func (m *MemStore) SetLastHeight(height uint64) error {
	return m.update(func(s *memState) { s.lastHeight = height })
}

func (m *MemStore) SetEpoch(startHeight, epoch uint64) error {
	return m.update(func(s *memState) {
		s.epochs = insertEpoch(s.epochs, EpochStart{Height: startHeight, Epoch: epoch})
	})
}

func (m *MemStore) SetValidators(epoch uint64, validators []types.Validator) error {
	return m.update(func(s *memState) {
		s.validators[epoch] = append([]types.Validator(nil), validators...)
	})
}

func (m *MemStore) SetBalance(token, owner types.Address, amount uint64) error {
	return m.update(func(s *memState) { s.balances[balanceKey{token, owner}] = amount })
}

func (m *MemStore) SetTxQueue(queue []transaction.WrapperTx) error {
	return m.update(func(s *memState) {
		s.queue = append([]transaction.WrapperTx(nil), queue...)
	})
}

type memSnapshot struct {
	s *memState
}

func (m *memSnapshot) LastHeight() (uint64, error) { return m.s.lastHeight, nil }

func (m *memSnapshot) Epoch(height uint64) (uint64, error) {
	e, ok := epochAt(m.s.epochs, height)
	if !ok {
		return 0, fmt.Errorf("%w %d", ErrUnknownEpoch, height)
	}
	return e, nil
}

func (m *memSnapshot) TotalVotingPower(epoch uint64) (uint64, error) {
	return totalPower(m.s.validators[epoch])
}

func (m *memSnapshot) Validator(epoch uint64, addr types.ValidatorAddress) (types.Validator, bool, error) {
	for _, v := range m.s.validators[epoch] {
		if v.Address == addr {
			return v, true, nil
		}
	}
	return types.Validator{}, false, nil
}

func (m *memSnapshot) Balance(token, owner types.Address) (uint64, error) {
	return m.s.balances[balanceKey{token, owner}], nil
}

func (m *memSnapshot) TxQueue() ([]transaction.WrapperTx, error) {
	return m.s.queue, nil
}

func (m *memSnapshot) Discard() {}
