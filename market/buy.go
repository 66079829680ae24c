package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/payment"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// trade is a completed settlement, reported as an event.
type trade struct {
	kind            chain.Kind
	sigHash         common.Hash
	seller          common.Address
	buyer           common.Address
	tokenContract   common.Address
	tokenID         *big.Int
	amount          *big.Int
	settlementToken common.Address
	price           *big.Int
	shares          payment.Shares
}

func (t trade) emit(c *sequencer.Call) {
	c.Emit(c.NewEvent(events.SettlementCompleted).
		With("kind", string(t.kind)).
		With("sig_hash", t.sigHash).
		With("seller", t.seller).
		With("buyer", t.buyer).
		With("token_contract", t.tokenContract).
		With("token_id", t.tokenID).
		With("amount", t.amount).
		With("settlement_token", t.settlementToken).
		With("price", t.price).
		With("seller_share", t.shares.SellerShare).
		With("commission", t.shares.Commission))
}

// BuyBySig buys the token of a signed sell order. value is the native
// currency attached to the call; any part not needed is refunded.
func (m *Marketplace) BuyBySig(ctx context.Context, caller common.Address, sell *chain.Signed[*chain.SellOrder], value *big.Int) (*sequencer.Receipt, error) {
	if !sell.Present() {
		return nil, chain.ErrMissingOrder
	}
	return m.settle(ctx, "buyBySig", caller, value, func(c *sequencer.Call, purse *payment.Purse) error {
		return m.buy(c, sell, purse)
	})
}

// MintWithSignatureAndBuyBySig redeems a lazy-mint voucher for the seller and
// buys the freshly minted token in the same call.
func (m *Marketplace) MintWithSignatureAndBuyBySig(ctx context.Context, caller common.Address, mint *chain.Signed[*chain.SignedMint], sell *chain.Signed[*chain.SellOrder], value *big.Int) (*sequencer.Receipt, error) {
	if !mint.Present() || !sell.Present() {
		return nil, chain.ErrMissingOrder
	}
	return m.settle(ctx, "mintWithSignatureAndBuyBySig", caller, value, func(c *sequencer.Call, purse *payment.Purse) error {
		collection, err := m.lazyMinter(sell.Order.TokenContract)
		if err != nil {
			return err
		}
		if orZero(mint.Order.TokenID).Cmp(orZero(sell.Order.TokenID)) != 0 || mint.Order.From != sell.Order.Seller {
			return chain.ErrOrderMismatch.WithReason(ReasonMintMismatch)
		}
		if err := collection.MintWithSignature(mint); err != nil {
			return err
		}
		return m.buy(c, sell, purse)
	})
}

func (m *Marketplace) buy(c *sequencer.Call, sell *chain.Signed[*chain.SellOrder], purse *payment.Purse) error {
	order := sell.Order
	sigHash := sell.SigHash()

	cancelled, err := c.Tx().IsCancelled(c.Context(), sigHash)
	if err != nil {
		return err
	}
	if cancelled {
		return chain.ErrSignatureCancelled
	}
	nft, err := m.erc721(order.TokenContract)
	if err != nil {
		return err
	}
	owner, err := nft.OwnerOf(order.TokenID)
	if err != nil {
		return err
	}
	if owner == c.Caller() {
		return chain.ErrAlreadyOwner
	}
	if owner != order.Seller {
		return chain.ErrSellerNoLongerOwner.WithReason(ReasonSellerNotOwner)
	}
	if !nft.IsApprovedForAll(order.Seller, m.address) {
		return chain.ErrNotApproved
	}
	if err := chain.Verify(m.domain, sell, ReasonSellerMismatch); err != nil {
		return err
	}

	shares, err := m.collect(charge{
		payer:           c.Caller(),
		seller:          order.Seller,
		settlementToken: order.SettlementToken,
		price:           order.SettlementPrice,
		nativeReason:    ReasonNativeShort,
	}, purse)
	if err != nil {
		return err
	}
	if err := nft.SafeTransferFrom(m.address, order.Seller, c.Caller(), order.TokenID); err != nil {
		return err
	}
	if err := c.Tx().SetCancelled(c.Context(), sigHash); err != nil {
		return err
	}

	trade{
		kind:            order.Kind(),
		sigHash:         sigHash,
		seller:          order.Seller,
		buyer:           c.Caller(),
		tokenContract:   order.TokenContract,
		tokenID:         order.TokenID,
		amount:          big.NewInt(1),
		settlementToken: order.SettlementToken,
		price:           orZero(order.SettlementPrice),
		shares:          shares,
	}.emit(c)
	return nil
}

// AcceptOfferSig sells the caller's token to the buyer of a signed offer.
// The buyer pays in an allowed ERC20 token.
func (m *Marketplace) AcceptOfferSig(ctx context.Context, caller common.Address, offer *chain.Signed[*chain.Offer]) (*sequencer.Receipt, error) {
	if !offer.Present() {
		return nil, chain.ErrMissingOrder
	}
	return m.settle(ctx, "acceptOfferSig", caller, nil, func(c *sequencer.Call, _ *payment.Purse) error {
		order := offer.Order
		sigHash := offer.SigHash()

		cancelled, err := c.Tx().IsCancelled(c.Context(), sigHash)
		if err != nil {
			return err
		}
		if cancelled {
			return chain.ErrSignatureCancelled
		}
		if caller == order.Buyer {
			return chain.ErrUnauthorized.WithReason(ReasonOwnOffer)
		}
		nft, err := m.erc721(order.TokenContract)
		if err != nil {
			return err
		}
		owner, err := nft.OwnerOf(order.TokenID)
		if err != nil {
			return err
		}
		if owner == order.Buyer {
			return chain.ErrAlreadyOwner.WithReason(ReasonBuyerOwns)
		}
		if owner != caller {
			return chain.ErrNotOwner.WithReason(ReasonAccepterNotOwner)
		}
		if !nft.IsApprovedForAll(caller, m.address) {
			return chain.ErrNotApproved.WithReason(ReasonAccepterNotApprove)
		}
		if expired(order.Deadline, c.Now()) {
			return chain.ErrSignatureExpired
		}
		if err := chain.Verify(m.domain, offer, ReasonBuyerMismatch); err != nil {
			return err
		}

		shares, err := m.collect(charge{
			payer:           order.Buyer,
			seller:          caller,
			settlementToken: order.SettlementToken,
			price:           order.SettlementPrice,
		}, nil)
		if err != nil {
			return err
		}
		if err := nft.SafeTransferFrom(m.address, caller, order.Buyer, order.TokenID); err != nil {
			return err
		}
		if err := c.Tx().SetCancelled(c.Context(), sigHash); err != nil {
			return err
		}

		trade{
			kind:            order.Kind(),
			sigHash:         sigHash,
			seller:          caller,
			buyer:           order.Buyer,
			tokenContract:   order.TokenContract,
			tokenID:         order.TokenID,
			amount:          big.NewInt(1),
			settlementToken: order.SettlementToken,
			price:           orZero(order.SettlementPrice),
			shares:          shares,
		}.emit(c)
		return nil
	})
}

// expired reports whether a deadline has passed. A zero deadline never expires.
func expired(deadline *big.Int, now uint64) bool {
	if deadline == nil || deadline.Sign() == 0 {
		return false
	}
	return new(big.Int).SetUint64(now).Cmp(deadline) > 0
}
