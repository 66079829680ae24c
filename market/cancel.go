package market

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/registry"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// cancel voids signed on behalf of its signer.
func cancel[T chain.Order](ctx context.Context, m *Marketplace, caller common.Address, signed *chain.Signed[T]) (*sequencer.Receipt, error) {
	if !signed.Present() {
		return nil, chain.ErrMissingOrder
	}
	kind := string(signed.Order.Kind())
	receipt, err := m.seq.Run(ctx, "cancel"+kind, caller, func(c *sequencer.Call) error {
		if caller != signed.Order.Initiator() {
			return chain.ErrUnauthorized.WithReason(ReasonCancelNotSigner)
		}
		if err := chain.Verify(m.domain, signed, ReasonCancelSigner); err != nil {
			return err
		}
		sigHash := signed.SigHash()
		if err := registry.Cancel(c.Context(), c.Tx(), sigHash); err != nil {
			if errors.Is(err, chain.ErrAlreadyCancelled) {
				return chain.ErrAlreadyCancelled
			}
			return err
		}
		c.Emit(c.NewEvent(events.OrderCancelled).
			With("kind", kind).
			With("sig_hash", sigHash).
			With("signer", caller))
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordCancellation(kind)
	m.logger.WithFields(logrus.Fields{
		"kind":     kind,
		"sig_hash": signed.SigHash().Hex(),
	}).Debug("Signature cancelled")
	return receipt, nil
}

// CancelSellSig voids a sell order. Only the seller may cancel it.
func (m *Marketplace) CancelSellSig(ctx context.Context, caller common.Address, sell *chain.Signed[*chain.SellOrder]) (*sequencer.Receipt, error) {
	return cancel(ctx, m, caller, sell)
}

// CancelSellSigMultiple voids a multi-unit sell order.
func (m *Marketplace) CancelSellSigMultiple(ctx context.Context, caller common.Address, sell *chain.Signed[*chain.SellOrderMultiple]) (*sequencer.Receipt, error) {
	return cancel(ctx, m, caller, sell)
}

// CancelOfferSig voids an offer. Only the buyer may cancel it.
func (m *Marketplace) CancelOfferSig(ctx context.Context, caller common.Address, offer *chain.Signed[*chain.Offer]) (*sequencer.Receipt, error) {
	return cancel(ctx, m, caller, offer)
}

// CancelOfferSigMultiple voids a multi-unit offer.
func (m *Marketplace) CancelOfferSigMultiple(ctx context.Context, caller common.Address, offer *chain.Signed[*chain.OfferMultiple]) (*sequencer.Receipt, error) {
	return cancel(ctx, m, caller, offer)
}

// CancelAuctionSig voids an auction. Only the seller may cancel it.
func (m *Marketplace) CancelAuctionSig(ctx context.Context, caller common.Address, auction *chain.Signed[*chain.Auction]) (*sequencer.Receipt, error) {
	return cancel(ctx, m, caller, auction)
}

// CancelAuctionSigMultiple voids a multi-unit auction.
func (m *Marketplace) CancelAuctionSigMultiple(ctx context.Context, caller common.Address, auction *chain.Signed[*chain.AuctionMultiple]) (*sequencer.Receipt, error) {
	return cancel(ctx, m, caller, auction)
}

// CancelBidSig voids a bid. Only the bidder may cancel it.
func (m *Marketplace) CancelBidSig(ctx context.Context, caller common.Address, bid *chain.Signed[*chain.Bid]) (*sequencer.Receipt, error) {
	return cancel(ctx, m, caller, bid)
}

// CancelBidSigMulti voids a multi-unit bid.
func (m *Marketplace) CancelBidSigMulti(ctx context.Context, caller common.Address, bid *chain.Signed[*chain.BidMultiple]) (*sequencer.Receipt, error) {
	return cancel(ctx, m, caller, bid)
}
