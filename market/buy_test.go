package market

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaifufi/nftspace-settlement-go/access"
	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/ledger"
)

func TestBuyBySigNativeSplitsCommission(t *testing.T) {
	f := newFixture(t).withCommission()
	f.listNFT()
	sell := sign(f, f.seller, f.sellOrder(chain.NativeCurrency))
	f.world.Fund(f.buyer.Address(), bigInt(12000))

	receipt, err := f.market.BuyBySig(ctx, f.buyer.Address(), sell, bigInt(12000))
	require.NoError(t, err)

	assert.Equal(t, int64(9000), f.world.Balance(f.seller.Address()).Int64())
	assert.Equal(t, int64(1000), f.world.Balance(f.beneficiary).Int64())
	assert.Equal(t, int64(2000), f.world.Balance(f.buyer.Address()).Int64(), "overpayment is refunded")
	assert.Equal(t, int64(0), f.world.Balance(f.market.Address()).Int64())
	assert.Equal(t, f.buyer.Address(), f.ownerOf(tokenID))
	assert.True(t, f.isCancelled(sell.SigHash()))

	require.Len(t, receipt.Events, 1)
	evt := receipt.Events[0]
	assert.Equal(t, events.SettlementCompleted, evt.Type)
	assert.Equal(t, "10000", evt.Data["price"])
	assert.Equal(t, "1000", evt.Data["commission"])
	assert.Equal(t, sell.SigHash().Hex(), evt.Data["sig_hash"])
	assert.Len(t, f.recorder.OfType(events.SettlementCompleted), 1)
}

func TestBuyBySigERC20(t *testing.T) {
	f := newFixture(t).withCommission().allowUSDT()
	f.listNFT()
	f.fundUSDT(f.buyer.Address(), price)
	sell := sign(f, f.seller, f.sellOrder(f.usdt.Address()))

	_, err := f.market.BuyBySig(ctx, f.buyer.Address(), sell, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(9000), f.usdt.BalanceOf(f.seller.Address()).Int64())
	assert.Equal(t, int64(1000), f.usdt.BalanceOf(f.beneficiary).Int64())
	assert.Equal(t, int64(0), f.usdt.BalanceOf(f.buyer.Address()).Int64())
	assert.Equal(t, f.buyer.Address(), f.ownerOf(tokenID))
}

func TestBuyBySigWithoutCommission(t *testing.T) {
	f := newFixture(t).allowUSDT()
	f.listNFT()
	f.fundUSDT(f.buyer.Address(), price)
	sell := sign(f, f.seller, f.sellOrder(f.usdt.Address()))

	_, err := f.market.BuyBySig(ctx, f.buyer.Address(), sell, nil)
	require.NoError(t, err)
	assert.Equal(t, price, f.usdt.BalanceOf(f.seller.Address()).Int64())
}

func TestBuyBySigRejections(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int)
		code   error
		reason string
	}{
		{
			name: "cancelled",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				sell := sign(f, f.seller, f.sellOrder(f.usdt.Address()))
				_, err := f.market.CancelSellSig(ctx, f.seller.Address(), sell)
				require.NoError(f.t, err)
				return sell, nil
			},
			code:   chain.ErrSignatureCancelled,
			reason: "Signature is cancelled",
		},
		{
			name: "cancelled while attaching more than the buyer holds",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				sell := sign(f, f.seller, f.sellOrder(chain.NativeCurrency))
				_, err := f.market.CancelSellSig(ctx, f.seller.Address(), sell)
				require.NoError(f.t, err)
				return sell, bigInt(3 * price)
			},
			code:   chain.ErrSignatureCancelled,
			reason: "Signature is cancelled",
		},
		{
			name: "price aliased below zero",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				sell := sign(f, f.seller, f.sellOrder(chain.NativeCurrency))
				return forge(sell, func(o *chain.SellOrder) { o.SettlementPrice = aliased(price) }), nil
			},
			code:   chain.ErrSignerMismatch,
			reason: "seller mismatch",
		},
		{
			name: "token id aliased above 2^256",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				sell := sign(f, f.seller, f.sellOrder(f.usdt.Address()))
				return forge(sell, func(o *chain.SellOrder) { o.TokenID = new(big.Int).Add(tokenID, twoTo256) }), nil
			},
			code:   chain.ErrNonexistentToken,
			reason: "ERC721: invalid token ID",
		},
		{
			name: "not an ERC721 contract",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				order := f.sellOrder(f.usdt.Address())
				order.TokenContract = f.sft.Address()
				return sign(f, f.seller, order), nil
			},
			code:   chain.ErrInvalidTokenContract,
			reason: "wrong NFT Collection address",
		},
		{
			name: "buyer already owns the token",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				require.NoError(f.t, f.nft.TransferFrom(f.seller.Address(), f.seller.Address(), f.buyer.Address(), tokenID))
				return sign(f, f.seller, f.sellOrder(f.usdt.Address())), nil
			},
			code:   chain.ErrAlreadyOwner,
			reason: "user is already the owner of this NFT",
		},
		{
			name: "token does not exist",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				order := f.sellOrder(f.usdt.Address())
				order.TokenID = big.NewInt(11)
				return sign(f, f.seller, order), nil
			},
			code:   chain.ErrNonexistentToken,
			reason: "ERC721: invalid token ID",
		},
		{
			name: "seller no longer owns the token",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				require.NoError(f.t, f.nft.TransferFrom(f.seller.Address(), f.seller.Address(), f.admin.Address(), tokenID))
				return sign(f, f.seller, f.sellOrder(f.usdt.Address())), nil
			},
			code:   chain.ErrSellerNoLongerOwner,
			reason: "seller is no longer the owner of this NFT",
		},
		{
			name: "marketplace not approved",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				f.nft.SetApprovalForAll(f.seller.Address(), f.market.Address(), false)
				return sign(f, f.seller, f.sellOrder(f.usdt.Address())), nil
			},
			code:   chain.ErrNotApproved,
			reason: "marketplace is not approved as an operator",
		},
		{
			name: "signed by someone else",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				return sign(f, f.buyer, f.sellOrder(f.usdt.Address())), nil
			},
			code:   chain.ErrSignerMismatch,
			reason: "seller mismatch",
		},
		{
			name: "native payment missing",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				return sign(f, f.seller, f.sellOrder(chain.NativeCurrency)), bigInt(price - 1)
			},
			code:   chain.ErrInsufficientFunds,
			reason: "not enough funds",
		},
		{
			name: "settlement token not allowed",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				other := ledger.DeployERC20(f.world, "DAI", 18)
				return sign(f, f.seller, f.sellOrder(other.Address())), nil
			},
			code:   chain.ErrTokenNotApproved,
			reason: "ERC20 token is not approved as a settlement token",
		},
		{
			name: "allowance too low",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				f.usdt.Approve(f.buyer.Address(), f.market.Address(), bigInt(price-1))
				return sign(f, f.seller, f.sellOrder(f.usdt.Address())), nil
			},
			code:   chain.ErrInsufficientAllowance,
			reason: "ERC20: insufficient allowance",
		},
		{
			name: "balance too low",
			setup: func(f *fixture) (*chain.Signed[*chain.SellOrder], *big.Int) {
				require.NoError(f.t, f.usdt.Transfer(f.buyer.Address(), f.admin.Address(), bigInt(1)))
				return sign(f, f.seller, f.sellOrder(f.usdt.Address())), nil
			},
			code:   chain.ErrInsufficientBalance,
			reason: "ERC20: transfer amount exceeds balance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t).withCommission().allowUSDT()
			f.listNFT()
			f.fundUSDT(f.buyer.Address(), price)
			f.world.Fund(f.buyer.Address(), bigInt(price))
			sell, value := tt.setup(f)
			f.recorder.Reset()

			ownerBefore, _ := f.nft.OwnerOf(tokenID)
			usdtBefore := f.usdt.BalanceOf(f.buyer.Address())
			cancelledBefore := f.isCancelled(sell.SigHash())

			_, err := f.market.BuyBySig(ctx, f.buyer.Address(), sell, value)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.code)
			assert.EqualError(t, err, tt.reason)

			ownerAfter, _ := f.nft.OwnerOf(tokenID)
			assert.Equal(t, ownerBefore, ownerAfter)
			assert.Equal(t, usdtBefore.String(), f.usdt.BalanceOf(f.buyer.Address()).String())
			assert.Equal(t, price, f.world.Balance(f.buyer.Address()).Int64())
			assert.Equal(t, cancelledBefore, f.isCancelled(sell.SigHash()))
			assert.Empty(t, f.recorder.Events())
		})
	}
}

func TestBuyBySigRentedTokenCannotBeSold(t *testing.T) {
	f := newFixture(t).allowUSDT()
	renting := common.HexToAddress("0x00000000000000000000000000000000000000e7")
	require.NoError(t, f.nft.Roles().GrantRole(f.admin.Address(), access.RentingOperatorRole, renting))
	require.NoError(t, f.nft.Mint(f.admin.Address(), f.seller.Address(), tokenID))
	require.NoError(t, f.nft.RentNFT(renting, f.seller.Address(), f.buyer.Address(), tokenID, genesis+ledger.SecondsPerDay, false))

	// the temporary owner tries to sell the rented token
	f.nft.SetApprovalForAll(f.buyer.Address(), f.market.Address(), true)
	order := f.sellOrder(f.usdt.Address())
	order.Seller = f.buyer.Address()
	sell := sign(f, f.buyer, order)
	f.fundUSDT(f.seller.Address(), price)

	_, err := f.market.BuyBySig(ctx, f.seller.Address(), sell, nil)
	assert.ErrorIs(t, err, chain.ErrTokenRented)
	assert.Equal(t, price, f.usdt.BalanceOf(f.seller.Address()).Int64())
	assert.Equal(t, f.buyer.Address(), f.ownerOf(tokenID))
}

func TestBuyBySigTwiceFails(t *testing.T) {
	f := newFixture(t).allowUSDT()
	f.listNFT()
	f.fundUSDT(f.buyer.Address(), 2*price)
	sell := sign(f, f.seller, f.sellOrder(f.usdt.Address()))

	_, err := f.market.BuyBySig(ctx, f.buyer.Address(), sell, nil)
	require.NoError(t, err)

	_, err = f.market.BuyBySig(ctx, f.buyer.Address(), sell, nil)
	assert.ErrorIs(t, err, chain.ErrSignatureCancelled)
}

func TestMintWithSignatureAndBuyBySig(t *testing.T) {
	f := newFixture(t).withCommission().allowUSDT()
	require.NoError(t, f.nft.Roles().GrantRole(f.admin.Address(), access.DefaultAdminRole, f.seller.Address()))
	f.nft.SetApprovalForAll(f.seller.Address(), f.market.Address(), true)
	f.fundUSDT(f.buyer.Address(), price)

	mint, err := chain.Sign(f.seller.OrderSigner, f.nft.Domain(), &chain.SignedMint{
		From:    f.seller.Address(),
		TokenID: tokenID,
		Nonce:   big.NewInt(1),
	})
	require.NoError(t, err)
	sell := sign(f, f.seller, f.sellOrder(f.usdt.Address()))

	_, err = f.market.MintWithSignatureAndBuyBySig(ctx, f.buyer.Address(), mint, sell, nil)
	require.NoError(t, err)
	assert.Equal(t, f.buyer.Address(), f.ownerOf(tokenID))
	assert.True(t, f.nft.IsSignatureCancelled(mint.SigHash()))
	assert.True(t, f.isCancelled(sell.SigHash()))
	assert.Equal(t, int64(9000), f.usdt.BalanceOf(f.seller.Address()).Int64())
}

func TestMintWithSignatureAndBuyBySigRejections(t *testing.T) {
	f := newFixture(t).allowUSDT()
	require.NoError(t, f.nft.Roles().GrantRole(f.admin.Address(), access.DefaultAdminRole, f.seller.Address()))
	f.nft.SetApprovalForAll(f.seller.Address(), f.market.Address(), true)
	f.fundUSDT(f.buyer.Address(), price)

	mint, err := chain.Sign(f.seller.OrderSigner, f.nft.Domain(), &chain.SignedMint{
		From:    f.seller.Address(),
		TokenID: tokenID,
		Nonce:   big.NewInt(1),
	})
	require.NoError(t, err)

	order := f.sellOrder(f.usdt.Address())
	order.TokenContract = f.sft.Address()
	_, err = f.market.MintWithSignatureAndBuyBySig(ctx, f.buyer.Address(), mint, sign(f, f.seller, order), nil)
	assert.EqualError(t, err, "wrong NFT Collection address")

	order = f.sellOrder(f.usdt.Address())
	order.TokenID = big.NewInt(11)
	_, err = f.market.MintWithSignatureAndBuyBySig(ctx, f.buyer.Address(), mint, sign(f, f.seller, order), nil)
	assert.ErrorIs(t, err, chain.ErrOrderMismatch)

	// a failed purchase undoes the mint
	order = f.sellOrder(f.usdt.Address())
	_, err = f.market.MintWithSignatureAndBuyBySig(ctx, f.buyer.Address(), mint, sign(f, f.buyer, order), nil)
	assert.ErrorIs(t, err, chain.ErrSignerMismatch)
	assert.False(t, f.nft.Exists(tokenID))
	assert.False(t, f.nft.IsSignatureCancelled(mint.SigHash()))
}

func TestMissingOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.market.BuyBySig(ctx, f.buyer.Address(), nil, nil)
	assert.ErrorIs(t, err, chain.ErrMissingOrder)

	_, err = f.market.AcceptOfferSig(ctx, f.seller.Address(), &chain.Signed[*chain.Offer]{})
	assert.ErrorIs(t, err, chain.ErrMissingOrder)
}
