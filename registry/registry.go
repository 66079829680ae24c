// Package registry records which signed orders are cancelled and how much of
// each multi-unit order has been filled. Entries are keyed by the hash of the
// signature bytes, so a re-signed order is a distinct entry.
package registry

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
)

// FillState is the fill progress of a multi-unit order.
type FillState struct {
	AmountFilled *big.Int
	FullySpent   bool
}

func (f FillState) filled() *big.Int {
	if f.AmountFilled == nil {
		return new(big.Int)
	}
	return f.AmountFilled
}

// Reader exposes registry lookups.
type Reader interface {
	IsCancelled(ctx context.Context, sigHash common.Hash) (bool, error)
	Fill(ctx context.Context, sigHash common.Hash) (FillState, error)
}

// Tx is a unit of registry writes applied together on Commit.
type Tx interface {
	Reader
	SetCancelled(ctx context.Context, sigHash common.Hash) error
	SetFill(ctx context.Context, sigHash common.Hash, state FillState) error
	Commit() error
	Rollback() error
}

// Store is a registry backend.
type Store interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
}

// Cancel marks sigHash cancelled. It fails with chain.ErrAlreadyCancelled
// when the entry is already cancelled.
func Cancel(ctx context.Context, tx Tx, sigHash common.Hash) error {
	cancelled, err := tx.IsCancelled(ctx, sigHash)
	if err != nil {
		return err
	}
	if cancelled {
		return chain.ErrAlreadyCancelled
	}
	return tx.SetCancelled(ctx, sigHash)
}

// RecordFill adds amount to the fill of sigHash. Filling past total fails with
// chain.ErrOverfill; reaching total marks the order fully spent and cancelled.
func RecordFill(ctx context.Context, tx Tx, sigHash common.Hash, amount, total *big.Int) (FillState, error) {
	state, err := tx.Fill(ctx, sigHash)
	if err != nil {
		return FillState{}, err
	}

	filled := new(big.Int).Add(state.filled(), amount)
	switch filled.Cmp(total) {
	case 1:
		return FillState{}, chain.ErrOverfill
	case 0:
		state = FillState{AmountFilled: filled, FullySpent: true}
		if err := tx.SetCancelled(ctx, sigHash); err != nil {
			return FillState{}, err
		}
	default:
		state = FillState{AmountFilled: filled}
	}

	if err := tx.SetFill(ctx, sigHash, state); err != nil {
		return FillState{}, err
	}
	return state, nil
}

// Remaining returns how many units of a total-unit order are still available.
// A cancelled order has none left.
func Remaining(ctx context.Context, r Reader, sigHash common.Hash, total *big.Int) (*big.Int, error) {
	cancelled, err := r.IsCancelled(ctx, sigHash)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return new(big.Int), nil
	}

	state, err := r.Fill(ctx, sigHash)
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(total, state.filled())
	if remaining.Sign() < 0 {
		return new(big.Int), nil
	}
	return remaining, nil
}
