package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/payment"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// AcceptBid settles an expired auction with a bid on it. The two orders
// must reference the same token and settlement asset. Anyone may submit the
// pair; both signatures are consumed.
func (m *Marketplace) AcceptBid(ctx context.Context, caller common.Address, bid *chain.Signed[*chain.Bid], auction *chain.Signed[*chain.Auction]) (*sequencer.Receipt, error) {
	if !bid.Present() || !auction.Present() {
		return nil, chain.ErrMissingOrder
	}
	return m.settle(ctx, "acceptBid", caller, nil, func(c *sequencer.Call, _ *payment.Purse) error {
		b, a := bid.Order, auction.Order
		if b.TokenContract != a.TokenContract ||
			orZero(b.TokenID).Cmp(orZero(a.TokenID)) != 0 ||
			b.SettlementToken != a.SettlementToken {
			return chain.ErrOrderMismatch
		}
		if err := m.checkAuction(c, bid.SigHash(), auction.SigHash(), a.ExpirationDate, b.BidValue, a.MinimumBidPrice, a.ReservePrice); err != nil {
			return err
		}

		nft, err := m.erc721(a.TokenContract)
		if err != nil {
			return err
		}
		owner, err := nft.OwnerOf(a.TokenID)
		if err != nil {
			return err
		}
		if owner == b.Bidder {
			return chain.ErrAlreadyOwner.WithReason(ReasonBuyerOwns)
		}
		if owner != a.Seller {
			return chain.ErrSellerNoLongerOwner.WithReason(ReasonSellerNotOwner)
		}
		if !nft.IsApprovedForAll(a.Seller, m.address) {
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
		if err := nft.SafeTransferFrom(m.address, a.Seller, b.Bidder, a.TokenID); err != nil {
			return err
		}
		if err := c.Tx().SetCancelled(c.Context(), bid.SigHash()); err != nil {
			return err
		}
		if err := c.Tx().SetCancelled(c.Context(), auction.SigHash()); err != nil {
			return err
		}

		trade{
			kind:            a.Kind(),
			sigHash:         auction.SigHash(),
			seller:          a.Seller,
			buyer:           b.Bidder,
			tokenContract:   a.TokenContract,
			tokenID:         a.TokenID,
			amount:          big.NewInt(1),
			settlementToken: a.SettlementToken,
			price:           orZero(b.BidValue),
			shares:          shares,
		}.emit(c)
		return nil
	})
}

// checkAuction validates the registry, time and price conditions shared by
// both auction settlements.
func (m *Marketplace) checkAuction(c *sequencer.Call, bidHash, auctionHash common.Hash, expiration, bidValue, minimumBid, reserve *big.Int) error {
	for _, h := range []common.Hash{bidHash, auctionHash} {
		cancelled, err := c.Tx().IsCancelled(c.Context(), h)
		if err != nil {
			return err
		}
		if cancelled {
			return chain.ErrSignatureCancelled
		}
	}
	if new(big.Int).SetUint64(c.Now()).Cmp(orZero(expiration)) <= 0 {
		return chain.ErrAuctionNotExpired
	}
	value := orZero(bidValue)
	if value.Cmp(orZero(minimumBid)) < 0 || value.Cmp(orZero(reserve)) < 0 {
		return chain.ErrBidTooLow
	}
	return nil
}
