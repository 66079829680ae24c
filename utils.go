package nftspace

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	MaxDecimals = 18
	ZeroAddress = "0x0000000000000000000000000000000000000000"
)

var maxUint256 = new(big.Int).Lsh(big.NewInt(1), 256)

// AmountToWei converts a human-readable amount such as "12.5" to base
// units of a token with the given decimals. Digits beyond decimals are
// truncated.
func AmountToWei(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, &InvalidParamError{Message: fmt.Sprintf("decimals must be between 0 and %d, got: %d", MaxDecimals, decimals)}
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, &InvalidParamError{Message: fmt.Sprintf("invalid amount format: %q", amount)}
	}
	if !d.IsPositive() {
		return nil, &InvalidParamError{Message: fmt.Sprintf("amount must be positive, got: %s", amount)}
	}

	result := d.Shift(int32(decimals)).Truncate(0).BigInt()
	if result.Cmp(maxUint256) >= 0 {
		return nil, &InvalidParamError{Message: fmt.Sprintf("amount too large for uint256: %s", result.String())}
	}
	if result.Sign() <= 0 {
		return nil, &InvalidParamError{Message: "calculated amount is zero or negative"}
	}
	return result, nil
}

// WeiToAmount formats base units as a human-readable amount.
func WeiToAmount(wei *big.Int, decimals int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -int32(decimals)).String()
}

// TotalPrice is the cost of amount units at unitPrice each.
func TotalPrice(unitPrice, amount *big.Int) *big.Int {
	return new(big.Int).Mul(unitPrice, amount)
}

// RentPrice is the cost of renting for days at dailyPrice.
func RentPrice(dailyPrice *big.Int, days uint64) *big.Int {
	return new(big.Int).Mul(dailyPrice, new(big.Int).SetUint64(days))
}
