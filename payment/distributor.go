package payment

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// NativeLedger moves the native coin between accounts.
type NativeLedger interface {
	TransferNative(from, to common.Address, value *big.Int) error
}

// Token is the part of ERC20 a settlement needs.
type Token interface {
	Transfer(from, to common.Address, value *big.Int) error
	TransferFrom(spender, from, to common.Address, value *big.Int) error
}

// Settlement describes one payment from Payer to Seller, with Rate of the
// price going to Beneficiary. A nil Token settles in native currency out of
// Purse.
type Settlement struct {
	Payer       common.Address
	Seller      common.Address
	Beneficiary common.Address
	Price       *big.Int
	Rate        Rate
	Token       Token
	Purse       *Purse
	// FundsReason replaces the insufficient funds message of a native settlement.
	FundsReason string
}

// Distributor pays settlements on behalf of the contract at Escrow. Native
// value attached to a call already sits in Escrow; ERC20 payments are
// pulled into it before being forwarded.
type Distributor struct {
	native NativeLedger
	escrow common.Address
	logger *logrus.Logger
}

// NewDistributor creates a distributor paying out of escrow.
func NewDistributor(native NativeLedger, escrow common.Address, logger *logrus.Logger) *Distributor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Distributor{native: native, escrow: escrow, logger: logger}
}

// Escrow returns the account payments flow through.
func (d *Distributor) Escrow() common.Address {
	return d.escrow
}

// Settle moves s.Price from the payer to the seller and beneficiary. A
// failing leg returns its error unchanged; the caller discards the partial
// state.
func (d *Distributor) Settle(s Settlement) (Shares, error) {
	shares := s.Rate.Split(s.Price)

	if s.Token == nil {
		if s.Purse == nil {
			return Shares{}, fmt.Errorf("native settlement without attached value")
		}
		if err := s.Purse.Spend(s.Price, s.FundsReason); err != nil {
			return Shares{}, err
		}
		if err := d.native.TransferNative(d.escrow, s.Seller, shares.SellerShare); err != nil {
			return Shares{}, err
		}
		if shares.Commission.Sign() > 0 {
			if err := d.native.TransferNative(d.escrow, s.Beneficiary, shares.Commission); err != nil {
				return Shares{}, err
			}
		}
	} else {
		if err := s.Token.TransferFrom(d.escrow, s.Payer, d.escrow, s.Price); err != nil {
			return Shares{}, err
		}
		if err := s.Token.Transfer(d.escrow, s.Seller, shares.SellerShare); err != nil {
			return Shares{}, err
		}
		if shares.Commission.Sign() > 0 {
			if err := s.Token.Transfer(d.escrow, s.Beneficiary, shares.Commission); err != nil {
				return Shares{}, err
			}
		}
	}

	d.logger.WithFields(logrus.Fields{
		"payer":      s.Payer.Hex(),
		"seller":     s.Seller.Hex(),
		"price":      s.Price.String(),
		"commission": shares.Commission.String(),
		"native":     s.Token == nil,
	}).Debug("Settlement paid")
	return shares, nil
}
