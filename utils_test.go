package nftspace

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountToWei(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"12.5", 6, "12500000"},
		{"0.000001", 6, "1"},
		{"1.23456789", 6, "1234567"},
		{"42", 0, "42"},
	}
	for _, tt := range tests {
		got, err := AmountToWei(tt.amount, tt.decimals)
		require.NoError(t, err, tt.amount)
		assert.Equal(t, tt.want, got.String(), tt.amount)
	}
}

func TestAmountToWeiRejects(t *testing.T) {
	for _, tc := range []struct {
		amount   string
		decimals int
		msg      string
	}{
		{"abc", 6, "invalid amount format"},
		{"0", 6, "amount must be positive"},
		{"-1", 6, "amount must be positive"},
		{"1", 19, "decimals must be between 0 and 18"},
		{"0.0000001", 6, "calculated amount is zero or negative"},
		{"1e80", 0, "amount too large for uint256"},
	} {
		_, err := AmountToWei(tc.amount, tc.decimals)
		assert.ErrorIs(t, err, ErrInvalidParam, tc.amount)
		assert.ErrorContains(t, err, tc.msg, tc.amount)
	}
}

func TestWeiToAmount(t *testing.T) {
	assert.Equal(t, "12.5", WeiToAmount(big.NewInt(12_500_000), 6))
	assert.Equal(t, "0.000001", WeiToAmount(big.NewInt(1), 6))
	assert.Equal(t, "0", WeiToAmount(nil, 18))
}

func TestPrices(t *testing.T) {
	assert.Equal(t, big.NewInt(600), TotalPrice(big.NewInt(100), big.NewInt(6)))
	assert.Equal(t, big.NewInt(3000), RentPrice(big.NewInt(1000), 3))
}
