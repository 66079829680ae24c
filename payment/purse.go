package payment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
)

// Purse tracks the native value attached to one call. Settlements spend
// from it and whatever is left goes back to the caller.
//
// A purse made by NewAttachedPurse holds value the payer has not been
// debited for yet. The first spend moves the whole attached value from the
// payer into escrow, so a payer who cannot cover it fails at the payment
// leg rather than before the call's other checks.
type Purse struct {
	remaining *big.Int
	funded    bool

	ledger NativeLedger
	payer  common.Address
	escrow common.Address
	value  *big.Int
}

// NewPurse returns a purse holding value that already sits in escrow.
func NewPurse(value *big.Int) *Purse {
	p := &Purse{remaining: new(big.Int), funded: true}
	if value != nil {
		p.remaining.Set(value)
	}
	return p
}

// NewAttachedPurse returns a purse for value attached by payer. Nothing is
// debited until the purse is first spent from.
func NewAttachedPurse(ledger NativeLedger, payer, escrow common.Address, value *big.Int) *Purse {
	p := NewPurse(value)
	p.funded = false
	p.ledger = ledger
	p.payer = payer
	p.escrow = escrow
	p.value = new(big.Int).Set(p.remaining)
	return p
}

// Remaining returns the unspent value.
func (p *Purse) Remaining() *big.Int {
	return new(big.Int).Set(p.remaining)
}

// Covers reports whether at least amount is left.
func (p *Purse) Covers(amount *big.Int) bool {
	return p.remaining.Cmp(amount) >= 0
}

// Spend takes amount out of the purse. reason overrides the default
// insufficient funds message when set.
func (p *Purse) Spend(amount *big.Int, reason string) error {
	if amount.Sign() < 0 {
		return chain.ErrValueOutOfRange.WithReason("cannot spend a negative amount")
	}
	if !p.Covers(amount) {
		if reason != "" {
			return chain.ErrInsufficientFunds.WithReason(reason)
		}
		return chain.ErrInsufficientFunds
	}
	if !p.funded {
		if err := p.ledger.TransferNative(p.payer, p.escrow, p.value); err != nil {
			return err
		}
		p.funded = true
	}
	p.remaining.Sub(p.remaining, amount)
	return nil
}

// Drain empties the purse and returns the value owed back to the payer.
// An attached purse that was never spent from owes nothing, since nothing
// was debited.
func (p *Purse) Drain() *big.Int {
	left := p.Remaining()
	p.remaining.SetInt64(0)
	if !p.funded {
		return new(big.Int)
	}
	return left
}
