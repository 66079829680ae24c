package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/payment"
	"github.com/kaifufi/nftspace-settlement-go/registry"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// BuyBySigMulti buys amount units of one ERC1155 token across partially
// filled sell orders. Orders are consumed greedily in the given order and
// each seller is paid, and charged commission, for its own units. Orders that
// cannot be used are skipped; if the orders run out before amount is reached
// the call fails without saying which order fell short.
func (m *Marketplace) BuyBySigMulti(ctx context.Context, caller, tokenContract common.Address, amount *big.Int, orders []*chain.Signed[*chain.SellOrderMultiple], value *big.Int) (*sequencer.Receipt, error) {
	return m.settle(ctx, "buyBySigMulti", caller, value, func(c *sequencer.Call, purse *payment.Purse) error {
		if amount == nil || amount.Sign() <= 0 {
			return chain.ErrInvalidAmount
		}
		if len(orders) == 0 {
			return chain.ErrInvalidAmount.WithReason(ReasonEmptySignatures)
		}
		collection, err := m.erc1155(tokenContract)
		if err != nil {
			return err
		}

		var tokenID *big.Int
		remaining := new(big.Int).Set(amount)
		for _, sell := range orders {
			if remaining.Sign() == 0 {
				break
			}
			if !sell.Present() {
				continue
			}
			order := sell.Order
			if tokenID == nil {
				tokenID = orZero(order.TokenID)
			}

			available, err := m.available(c, collection, tokenContract, tokenID, sell)
			if err != nil {
				return err
			}
			if available.Sign() == 0 {
				continue
			}
			take := available
			if take.Cmp(remaining) > 0 {
				take = new(big.Int).Set(remaining)
			}

			price := new(big.Int).Mul(take, orZero(order.SettlementPrice))
			shares, err := m.collect(charge{
				payer:           caller,
				seller:          order.Seller,
				settlementToken: order.SettlementToken,
				price:           price,
				tokenReason:     ReasonMultiTokenRejected,
			}, purse)
			if err != nil {
				return err
			}
			if err := collection.SafeTransferFrom(m.address, order.Seller, caller, tokenID, take); err != nil {
				return err
			}
			if _, err := registry.RecordFill(c.Context(), c.Tx(), sell.SigHash(), take, orZero(order.Amount)); err != nil {
				return err
			}
			remaining.Sub(remaining, take)

			trade{
				kind:            order.Kind(),
				sigHash:         sell.SigHash(),
				seller:          order.Seller,
				buyer:           caller,
				tokenContract:   tokenContract,
				tokenID:         tokenID,
				amount:          take,
				settlementToken: order.SettlementToken,
				price:           price,
				shares:          shares,
			}.emit(c)
		}

		if remaining.Sign() > 0 {
			return chain.ErrInsufficientSupply
		}
		return nil
	})
}

// available returns how many units sell can contribute to a purchase of
// tokenID on tokenContract. Unusable orders contribute zero.
func (m *Marketplace) available(c *sequencer.Call, collection ERC1155, tokenContract common.Address, tokenID *big.Int, sell *chain.Signed[*chain.SellOrderMultiple]) (*big.Int, error) {
	order := sell.Order
	none := new(big.Int)
	if order.TokenContract != tokenContract || orZero(order.TokenID).Cmp(tokenID) != 0 {
		return none, nil
	}
	if chain.Verify(m.domain, sell, ReasonSellerMismatch) != nil {
		return none, nil
	}
	if !collection.IsApprovedForAll(order.Seller, m.address) {
		return none, nil
	}
	left, err := registry.Remaining(c.Context(), c.Tx(), sell.SigHash(), orZero(order.Amount))
	if err != nil {
		return nil, err
	}
	if balance := collection.BalanceOf(order.Seller, tokenID); balance.Cmp(left) < 0 {
		left = balance
	}
	return left, nil
}

// AcceptOfferSigMulti sells amount units held by the caller to the buyer of
// a signed multi-unit offer. The offer price covers the whole amount.
func (m *Marketplace) AcceptOfferSigMulti(ctx context.Context, caller common.Address, offer *chain.Signed[*chain.OfferMultiple]) (*sequencer.Receipt, error) {
	if !offer.Present() {
		return nil, chain.ErrMissingOrder
	}
	return m.settle(ctx, "acceptOfferSigMulti", caller, nil, func(c *sequencer.Call, _ *payment.Purse) error {
		order := offer.Order
		sigHash := offer.SigHash()
		amount := orZero(order.Amount)

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
		collection, err := m.erc1155(order.TokenContract)
		if err != nil {
			return err
		}
		if amount.Sign() <= 0 {
			return chain.ErrInvalidAmount
		}
		if collection.BalanceOf(caller, order.TokenID).Cmp(amount) < 0 {
			return chain.ErrNotOwner.WithReason(ReasonAccepterNotOwner)
		}
		if !collection.IsApprovedForAll(caller, m.address) {
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
		if err := collection.SafeTransferFrom(m.address, caller, order.Buyer, order.TokenID, amount); err != nil {
			return err
		}
		if _, err := registry.RecordFill(c.Context(), c.Tx(), sigHash, amount, amount); err != nil {
			return err
		}

		trade{
			kind:            order.Kind(),
			sigHash:         sigHash,
			seller:          caller,
			buyer:           order.Buyer,
			tokenContract:   order.TokenContract,
			tokenID:         order.TokenID,
			amount:          amount,
			settlementToken: order.SettlementToken,
			price:           orZero(order.SettlementPrice),
			shares:          shares,
		}.emit(c)
		return nil
	})
}

// AcceptBidMultiple settles an expired multi-unit auction with a bid for the
// same amount. The bid value covers the whole amount.
func (m *Marketplace) AcceptBidMultiple(ctx context.Context, caller common.Address, bid *chain.Signed[*chain.BidMultiple], auction *chain.Signed[*chain.AuctionMultiple]) (*sequencer.Receipt, error) {
	if !bid.Present() || !auction.Present() {
		return nil, chain.ErrMissingOrder
	}
	return m.settle(ctx, "acceptBidMultiple", caller, nil, func(c *sequencer.Call, _ *payment.Purse) error {
		b, a := bid.Order, auction.Order
		amount := orZero(a.Amount)
		if b.TokenContract != a.TokenContract ||
			orZero(b.TokenID).Cmp(orZero(a.TokenID)) != 0 ||
			orZero(b.Amount).Cmp(amount) != 0 ||
			b.SettlementToken != a.SettlementToken {
			return chain.ErrOrderMismatch
		}
		if err := m.checkAuction(c, bid.SigHash(), auction.SigHash(), a.ExpirationDate, b.BidValue, a.MinimumBidPrice, a.ReservePrice); err != nil {
			return err
		}

		collection, err := m.erc1155(a.TokenContract)
		if err != nil {
			return err
		}
		if amount.Sign() <= 0 {
			return chain.ErrInvalidAmount
		}
		if collection.BalanceOf(a.Seller, a.TokenID).Cmp(amount) < 0 {
			return chain.ErrSellerNoLongerOwner.WithReason(ReasonSellerNotOwner)
		}
		if !collection.IsApprovedForAll(a.Seller, m.address) {
			return chain.ErrNotApproved
		}
		if err := chain.Verify(m.domain, auction, ReasonSellerMismatch); err != nil {
			return err
		}
		if err := chain.Verify(m.domain, bid, ReasonBidderMismatch); err != nil {
			return err
		}

		shares, err := m.collect(charge{
			payer:           b.Bidder,
			seller:          a.Seller,
			settlementToken: a.SettlementToken,
			price:           b.BidValue,
		}, nil)
		if err != nil {
			return err
		}
		if err := collection.SafeTransferFrom(m.address, a.Seller, b.Bidder, a.TokenID, amount); err != nil {
			return err
		}
		for _, h := range []common.Hash{bid.SigHash(), auction.SigHash()} {
			if _, err := registry.RecordFill(c.Context(), c.Tx(), h, amount, amount); err != nil {
				return err
			}
		}

		trade{
			kind:            a.Kind(),
			sigHash:         auction.SigHash(),
			seller:          a.Seller,
			buyer:           b.Bidder,
			tokenContract:   a.TokenContract,
			tokenID:         a.TokenID,
			amount:          amount,
			settlementToken: a.SettlementToken,
			price:           orZero(b.BidValue),
			shares:          shares,
		}.emit(c)
		return nil
	})
}
