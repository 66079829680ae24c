package payment

import (
	"io"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/ledger"
)

var (
	buyer       = common.HexToAddress("0xb0b0000000000000000000000000000000000001")
	seller      = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
	beneficiary = common.HexToAddress("0xb0b0000000000000000000000000000000000003")
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		rate       Rate
		price      int64
		commission int64
	}{
		{"ten percent", Permille(100), 10000, 1000},
		{"rounds down", Permille(100), 9, 0},
		{"half permille cap", Permille(500), 3, 1},
		{"basis points", BasisPoints(1000), 2500, 250},
		{"zero rate", Rate{}, 10000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares := tt.rate.Split(big.NewInt(tt.price))
			assert.Equal(t, tt.commission, shares.Commission.Int64())
			assert.Equal(t, tt.price, new(big.Int).Add(shares.SellerShare, shares.Commission).Int64())
		})
	}
}

func TestNewRate(t *testing.T) {
	_, err := NewRate(big.NewInt(1), big.NewInt(0))
	assert.EqualError(t, err, "Denominator cannot be 0")

	r, err := NewRate(big.NewInt(1), big.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, int64(25), r.Split(big.NewInt(100)).Commission.Int64())
}

func TestPurse(t *testing.T) {
	p := NewPurse(big.NewInt(100))
	require.NoError(t, p.Spend(big.NewInt(60), ""))

	err := p.Spend(big.NewInt(41), "")
	assert.ErrorIs(t, err, chain.ErrInsufficientFunds)
	assert.EqualError(t, err, "Insufficient funds")
	assert.EqualError(t, p.Spend(big.NewInt(41), "not enough funds"), "not enough funds")

	assert.Equal(t, int64(40), p.Drain().Int64())
	assert.Equal(t, int64(0), p.Remaining().Int64())
}

func TestPurseRejectsNegativeSpend(t *testing.T) {
	p := NewPurse(big.NewInt(100))
	assert.ErrorIs(t, p.Spend(big.NewInt(-1), ""), chain.ErrValueOutOfRange)
	assert.Equal(t, int64(100), p.Remaining().Int64())
}

func TestAttachedPurseDebitsOnFirstSpend(t *testing.T) {
	w := ledger.NewWorld(big.NewInt(1), 1)
	escrow := w.NewAddress()
	w.Fund(buyer, big.NewInt(500))

	unused := NewAttachedPurse(w, buyer, escrow, big.NewInt(300))
	assert.True(t, unused.Covers(big.NewInt(300)))
	assert.Equal(t, int64(0), unused.Drain().Int64(), "nothing was taken, nothing is owed back")
	assert.Equal(t, int64(500), w.Balance(buyer).Int64())

	p := NewAttachedPurse(w, buyer, escrow, big.NewInt(300))
	require.NoError(t, p.Spend(big.NewInt(100), ""))
	assert.Equal(t, int64(200), w.Balance(buyer).Int64())
	assert.Equal(t, int64(300), w.Balance(escrow).Int64())
	require.NoError(t, p.Spend(big.NewInt(50), ""))
	assert.Equal(t, int64(200), w.Balance(buyer).Int64(), "the attached value is debited once")
	assert.Equal(t, int64(150), p.Drain().Int64())
}

func TestAttachedPurseFailsWhenPayerCannotCoverValue(t *testing.T) {
	w := ledger.NewWorld(big.NewInt(1), 1)
	escrow := w.NewAddress()
	w.Fund(buyer, big.NewInt(99))

	p := NewAttachedPurse(w, buyer, escrow, big.NewInt(100))
	err := p.Spend(big.NewInt(10), "")
	assert.ErrorIs(t, err, chain.ErrInsufficientFunds)
	assert.EqualError(t, err, "insufficient funds for transfer")
	assert.Equal(t, int64(99), w.Balance(buyer).Int64())
}

func TestSettleNative(t *testing.T) {
	w := ledger.NewWorld(big.NewInt(1), 1)
	escrow := w.NewAddress()
	w.Fund(escrow, big.NewInt(10500))
	d := NewDistributor(w, escrow, quietLogger())

	purse := NewPurse(big.NewInt(10500))
	shares, err := d.Settle(Settlement{
		Payer:       buyer,
		Seller:      seller,
		Beneficiary: beneficiary,
		Price:       big.NewInt(10000),
		Rate:        Permille(100),
		Purse:       purse,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9000), shares.SellerShare.Int64())
	assert.Equal(t, int64(9000), w.Balance(seller).Int64())
	assert.Equal(t, int64(1000), w.Balance(beneficiary).Int64())
	assert.Equal(t, int64(500), purse.Remaining().Int64())
	assert.Equal(t, int64(500), w.Balance(escrow).Int64())
}

func TestSettleNativeUnderpaid(t *testing.T) {
	w := ledger.NewWorld(big.NewInt(1), 1)
	escrow := w.NewAddress()
	d := NewDistributor(w, escrow, quietLogger())

	_, err := d.Settle(Settlement{
		Seller:      seller,
		Price:       big.NewInt(10000),
		Purse:       NewPurse(big.NewInt(9999)),
		FundsReason: "not enough funds",
	})
	assert.EqualError(t, err, "not enough funds")
	assert.Equal(t, int64(0), w.Balance(seller).Int64())
}

func TestSettleERC20(t *testing.T) {
	w := ledger.NewWorld(big.NewInt(1), 1)
	escrow := w.NewAddress()
	token := ledger.DeployERC20(w, "USDT", 6)
	token.Mint(buyer, big.NewInt(10000))
	d := NewDistributor(w, escrow, quietLogger())

	s := Settlement{
		Payer:       buyer,
		Seller:      seller,
		Beneficiary: beneficiary,
		Price:       big.NewInt(10000),
		Rate:        Permille(100),
		Token:       token,
	}
	_, err := d.Settle(s)
	assert.ErrorIs(t, err, chain.ErrInsufficientAllowance)

	token.Approve(buyer, escrow, big.NewInt(10000))
	_, err = d.Settle(s)
	require.NoError(t, err)
	assert.Equal(t, int64(0), token.BalanceOf(buyer).Int64())
	assert.Equal(t, int64(9000), token.BalanceOf(seller).Int64())
	assert.Equal(t, int64(1000), token.BalanceOf(beneficiary).Int64())
	assert.Equal(t, int64(0), token.BalanceOf(escrow).Int64())
}

func TestSettleZeroCommissionSkipsBeneficiary(t *testing.T) {
	w := ledger.NewWorld(big.NewInt(1), 1)
	escrow := w.NewAddress()
	token := ledger.DeployERC20(w, "USDT", 6)
	token.Mint(buyer, big.NewInt(100))
	token.Approve(buyer, escrow, big.NewInt(100))
	d := NewDistributor(w, escrow, quietLogger())

	shares, err := d.Settle(Settlement{Payer: buyer, Seller: seller, Price: big.NewInt(100), Token: token})
	require.NoError(t, err)
	assert.Equal(t, int64(0), shares.Commission.Int64())
	assert.Equal(t, int64(100), token.BalanceOf(seller).Int64())
}
