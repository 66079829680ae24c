package registry

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var errTxDone = errors.New("registry: transaction already committed or rolled back")

// MemoryStore keeps the registry in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	cancelled map[common.Hash]bool
	fills     map[common.Hash]FillState
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cancelled: make(map[common.Hash]bool),
		fills:     make(map[common.Hash]FillState),
	}
}

func (s *MemoryStore) IsCancelled(_ context.Context, sigHash common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled[sigHash], nil
}

func (s *MemoryStore) Fill(_ context.Context, sigHash common.Hash) (FillState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyFill(s.fills[sigHash]), nil
}

// Begin starts a transaction whose writes stay private until Commit.
func (s *MemoryStore) Begin(context.Context) (Tx, error) {
	return &memoryTx{
		store:     s,
		cancelled: make(map[common.Hash]bool),
		fills:     make(map[common.Hash]FillState),
	}, nil
}

type memoryTx struct {
	store     *MemoryStore
	cancelled map[common.Hash]bool
	fills     map[common.Hash]FillState
	done      bool
}

func (tx *memoryTx) IsCancelled(ctx context.Context, sigHash common.Hash) (bool, error) {
	if tx.cancelled[sigHash] {
		return true, nil
	}
	return tx.store.IsCancelled(ctx, sigHash)
}

func (tx *memoryTx) Fill(ctx context.Context, sigHash common.Hash) (FillState, error) {
	if state, ok := tx.fills[sigHash]; ok {
		return copyFill(state), nil
	}
	return tx.store.Fill(ctx, sigHash)
}

func (tx *memoryTx) SetCancelled(_ context.Context, sigHash common.Hash) error {
	if tx.done {
		return errTxDone
	}
	tx.cancelled[sigHash] = true
	return nil
}

func (tx *memoryTx) SetFill(_ context.Context, sigHash common.Hash, state FillState) error {
	if tx.done {
		return errTxDone
	}
	tx.fills[sigHash] = copyFill(state)
	return nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return errTxDone
	}
	tx.done = true

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for h := range tx.cancelled {
		tx.store.cancelled[h] = true
	}
	for h, state := range tx.fills {
		tx.store.fills[h] = state
	}
	return nil
}

func (tx *memoryTx) Rollback() error {
	tx.done = true
	return nil
}

func copyFill(state FillState) FillState {
	return FillState{AmountFilled: new(big.Int).Set(state.filled()), FullySpent: state.FullySpent}
}
