// Package ledger is an in-process execution host for the settlement engines:
// native balances, a block clock, a contract directory and the token
// contracts a marketplace settles against. Every mutation is journaled so a
// failed settlement can be reverted to its starting snapshot.
package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kaifufi/nftspace-settlement-go/chain"
)

// SecondsPerDay is the length of one rental day.
const SecondsPerDay = 86400

// World holds chain state. It is not safe for concurrent use; settlement
// engines serialize through Lock.
type World struct {
	mu sync.Mutex

	chainID   *big.Int
	now       uint64
	deployer  common.Address
	nonce     uint64
	balances  map[common.Address]*big.Int
	contracts map[common.Address]interface{}
	journal   []func()
}

// NewWorld creates an empty world whose clock starts at now.
func NewWorld(chainID *big.Int, now uint64) *World {
	return &World{
		chainID:   new(big.Int).Set(chainID),
		now:       now,
		deployer:  common.BytesToAddress(crypto.Keccak256([]byte("ledger deployer"))[12:]),
		balances:  make(map[common.Address]*big.Int),
		contracts: make(map[common.Address]interface{}),
	}
}

// Lock acquires exclusive use of the world for one settlement call.
func (w *World) Lock() { w.mu.Lock() }

// Unlock releases the world.
func (w *World) Unlock() { w.mu.Unlock() }

// ChainID returns the chain id contracts in this world sign under.
func (w *World) ChainID() *big.Int { return new(big.Int).Set(w.chainID) }

// Now returns the current block timestamp.
func (w *World) Now() uint64 { return w.now }

// SetTime moves the block clock to ts.
func (w *World) SetTime(ts uint64) { w.now = ts }

// Advance moves the block clock forward by seconds.
func (w *World) Advance(seconds uint64) { w.now += seconds }

// NewAddress allocates a fresh contract address the way CREATE does.
func (w *World) NewAddress() common.Address {
	addr := crypto.CreateAddress(w.deployer, w.nonce)
	w.nonce++
	return addr
}

// Register makes contract reachable at addr.
func (w *World) Register(addr common.Address, contract interface{}) {
	w.contracts[addr] = contract
}

// Contract returns the contract deployed at addr.
func (w *World) Contract(addr common.Address) (interface{}, bool) {
	c, ok := w.contracts[addr]
	return c, ok
}

// Balance returns the native balance of addr.
func (w *World) Balance(addr common.Address) *big.Int {
	if b, ok := w.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Fund credits addr with value out of thin air.
func (w *World) Fund(addr common.Address, value *big.Int) {
	w.setBalance(addr, new(big.Int).Add(w.Balance(addr), value))
}

// TransferNative moves value of the native coin from one account to another.
func (w *World) TransferNative(from, to common.Address, value *big.Int) error {
	switch value.Sign() {
	case 0:
		return nil
	case -1:
		return chain.ErrValueOutOfRange.WithReason("negative transfer value")
	}
	balance := w.Balance(from)
	if balance.Cmp(value) < 0 {
		return chain.ErrInsufficientFunds.WithReason("insufficient funds for transfer")
	}
	w.setBalance(from, balance.Sub(balance, value))
	w.setBalance(to, new(big.Int).Add(w.Balance(to), value))
	return nil
}

func (w *World) setBalance(addr common.Address, value *big.Int) {
	prev, existed := w.balances[addr]
	w.record(func() {
		if existed {
			w.balances[addr] = prev
		} else {
			delete(w.balances, addr)
		}
	})
	w.balances[addr] = value
}

// Snapshot returns an identifier for the current state.
func (w *World) Snapshot() int {
	return len(w.journal)
}

// RevertToSnapshot undoes every mutation made after Snapshot returned id.
func (w *World) RevertToSnapshot(id int) {
	for i := len(w.journal) - 1; i >= id; i-- {
		w.journal[i]()
	}
	w.journal = w.journal[:id]
}

// Finalise drops the journal; earlier snapshots can no longer be reverted.
func (w *World) Finalise() {
	w.journal = w.journal[:0]
}

func (w *World) record(undo func()) {
	w.journal = append(w.journal, undo)
}
