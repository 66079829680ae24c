// Package payment splits settlement amounts between a seller and a fee
// beneficiary and moves the funds in native currency or an ERC20 token.
package payment

import (
	"math/big"

	"github.com/kaifufi/nftspace-settlement-go/chain"
)

var (
	thousand    = big.NewInt(1000)
	tenThousand = big.NewInt(10000)
)

// Rate is a fee expressed as Numerator/Denominator of the price.
type Rate struct {
	Numerator   *big.Int
	Denominator *big.Int
}

// Permille returns a rate of p/1000.
func Permille(p uint64) Rate {
	return Rate{Numerator: new(big.Int).SetUint64(p), Denominator: thousand}
}

// BasisPoints returns a rate of bps/10000.
func BasisPoints(bps uint64) Rate {
	return Rate{Numerator: new(big.Int).SetUint64(bps), Denominator: tenThousand}
}

// NewRate returns num/den. den must be non-zero.
func NewRate(num, den *big.Int) (Rate, error) {
	if den == nil || den.Sign() == 0 {
		return Rate{}, chain.ErrInvalidConfig.WithReason("Denominator cannot be 0")
	}
	if num == nil {
		num = new(big.Int)
	}
	return Rate{Numerator: new(big.Int).Set(num), Denominator: new(big.Int).Set(den)}, nil
}

// IsZero reports whether the rate charges nothing.
func (r Rate) IsZero() bool {
	return r.Numerator == nil || r.Numerator.Sign() == 0 || r.Denominator == nil || r.Denominator.Sign() == 0
}

// Shares is a price divided between the seller and the beneficiary.
type Shares struct {
	SellerShare *big.Int
	Commission  *big.Int
}

// Split divides price, rounding the commission down. SellerShare and
// Commission always add up to price.
func (r Rate) Split(price *big.Int) Shares {
	commission := new(big.Int)
	if !r.IsZero() && price != nil {
		commission.Mul(price, r.Numerator)
		commission.Quo(commission, r.Denominator)
	}
	seller := new(big.Int)
	if price != nil {
		seller.Sub(price, commission)
	}
	return Shares{SellerShare: seller, Commission: commission}
}
