package renting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/events"
	"github.com/kaifufi/nftspace-settlement-go/payment"
	"github.com/kaifufi/nftspace-settlement-go/registry"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// SecondsPerDay is the length of one rental day.
const SecondsPerDay = 86400

// RentWithSig rents the token of a signed listing to the caller for days
// days. Native rents are paid out of value and the change is refunded.
// A listing that does not allow multiple rent sessions is consumed.
func (p *Protocol) RentWithSig(ctx context.Context, caller common.Address, days uint64, listing *chain.Signed[*chain.RentListing], value *big.Int) (*sequencer.Receipt, error) {
	if !listing.Present() {
		return nil, chain.ErrMissingOrder
	}
	value = orZero(value)
	receipt, err := p.seq.Run(ctx, "rentWithSig", caller, func(c *sequencer.Call) error {
		purse := payment.NewAttachedPurse(p.backend, caller, p.address, value)
		if err := p.rent(c, days, listing, purse); err != nil {
			return err
		}
		return p.backend.TransferNative(p.address, caller, purse.Drain())
	})
	if err != nil {
		return nil, err
	}
	for _, evt := range receipt.Events {
		if price, ok := new(big.Int).SetString(evt.Data["price"], 10); ok {
			p.metrics.RecordVolume("rentWithSig", asset(listing.Order.SettlementToken), price)
		}
	}
	return receipt, nil
}

func (p *Protocol) rent(c *sequencer.Call, days uint64, listing *chain.Signed[*chain.RentListing], purse *payment.Purse) error {
	order := listing.Order
	sigHash := listing.SigHash()

	cancelled, err := c.Tx().IsCancelled(c.Context(), sigHash)
	if err != nil {
		return err
	}
	if cancelled {
		return chain.ErrSignatureCancelled.WithReason(ReasonListingCancelled)
	}
	if expiry := order.RentListingExpiry; expiry != nil && expiry.Sign() > 0 && new(big.Int).SetUint64(c.Now()).Cmp(expiry) > 0 {
		return chain.ErrSignatureExpired
	}
	collection, err := p.collection(order.TokenContract)
	if err != nil {
		return err
	}
	period := new(big.Int).SetUint64(days)
	if period.Cmp(orZero(order.MinimumDays)) < 0 || period.Cmp(orZero(order.MaximumDays)) > 0 {
		return chain.ErrInvalidDuration
	}
	// The return timestamp must fit the clock.
	if days > (math.MaxUint64-c.Now())/SecondsPerDay {
		return chain.ErrInvalidDuration
	}
	owner, err := collection.OwnerOf(order.TokenID)
	if err != nil {
		return err
	}
	if owner == c.Caller() {
		return chain.ErrAlreadyOwner.WithReason(ReasonRenterOwns)
	}
	if collection.IsRented(order.TokenID) {
		return chain.ErrAlreadyRented.WithReason(ReasonActiveRent)
	}
	if owner != order.OriginalOwner {
		return chain.ErrOriginalOwnerMismatch
	}
	if err := p.verifyOwner(listing); err != nil {
		return err
	}

	price := new(big.Int).Mul(orZero(order.DailyPrice), period)
	shares, err := p.collect(c.Caller(), order.OriginalOwner, order.SettlementToken, price, purse)
	if err != nil {
		return err
	}

	returnTimestamp := c.Now() + days*SecondsPerDay
	if err := collection.RentNFT(p.address, order.OriginalOwner, c.Caller(), order.TokenID, returnTimestamp, order.PrematureReturnAllowed); err != nil {
		return err
	}
	if !order.MultipleRentSessionsAllowed {
		if err := c.Tx().SetCancelled(c.Context(), sigHash); err != nil {
			return err
		}
	}

	c.Emit(c.NewEvent(events.RentalStarted).
		With("sig_hash", sigHash).
		With("original_owner", order.OriginalOwner).
		With("temporary_owner", c.Caller()).
		With("token_contract", order.TokenContract).
		With("token_id", order.TokenID).
		With("days", days).
		With("return_timestamp", returnTimestamp).
		With("premature_return_allowed", order.PrematureReturnAllowed).
		With("settlement_token", order.SettlementToken).
		With("price", price).
		With("owner_share", shares.SellerShare).
		With("fee", shares.Commission))
	return nil
}

// collect pays price from renter to owner, less the protocol fee.
func (p *Protocol) collect(renter, owner, settlementToken common.Address, price *big.Int, purse *payment.Purse) (payment.Shares, error) {
	rate, receiver := p.feeSplit()
	s := payment.Settlement{
		Payer:       renter,
		Seller:      owner,
		Beneficiary: receiver,
		Price:       price,
		Rate:        rate,
		Purse:       purse,
		FundsReason: ReasonNativeShort,
	}
	if settlementToken == chain.NativeCurrency {
		if !purse.Covers(price) {
			return payment.Shares{}, chain.ErrInsufficientFunds.WithReason(ReasonNativeShort)
		}
		return p.payments.Settle(s)
	}

	contract, _ := p.backend.Contract(settlementToken)
	token, ok := contract.(payment.Token)
	if !ok {
		return payment.Shares{}, chain.ErrTokenNotApproved.WithReason(ReasonNotSettlementToken)
	}
	if reader, ok := contract.(allowanceReader); ok && reader.Allowance(renter, p.address).Cmp(price) < 0 {
		return payment.Shares{}, chain.ErrInsufficientAllowance.WithReason(ReasonAllowance)
	}
	s.Token = token
	return p.payments.Settle(s)
}

// verifyOwner checks that listing was signed by its original owner.
func (p *Protocol) verifyOwner(listing *chain.Signed[*chain.RentListing]) error {
	signer, err := chain.Recover(p.domain, listing)
	if err != nil {
		return err
	}
	if signer != listing.Order.OriginalOwner {
		return chain.ErrSignerMismatch.WithReason(fmt.Sprintf("originalOwnerMismatch(%q, %q)",
			listing.Order.OriginalOwner.Hex(), signer.Hex()))
	}
	return nil
}

// CancelRentSig voids a listing. Only its original owner may cancel it.
func (p *Protocol) CancelRentSig(ctx context.Context, caller common.Address, listing *chain.Signed[*chain.RentListing]) (*sequencer.Receipt, error) {
	if !listing.Present() {
		return nil, chain.ErrMissingOrder
	}
	kind := string(listing.Order.Kind())
	receipt, err := p.seq.Run(ctx, "cancelRentSig", caller, func(c *sequencer.Call) error {
		if caller != listing.Order.OriginalOwner {
			return chain.ErrUnauthorized.WithReason(ReasonCancelNotOwner)
		}
		if err := p.verifyOwner(listing); err != nil {
			return err
		}
		sigHash := listing.SigHash()
		if err := registry.Cancel(c.Context(), c.Tx(), sigHash); err != nil {
			if errors.Is(err, chain.ErrAlreadyCancelled) {
				return chain.ErrAlreadyCancelled.WithReason(ReasonAlreadyCancelled)
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
	p.metrics.RecordCancellation(kind)
	return receipt, nil
}

// ReturnNFT ends the rent session of a token. Anyone may return it once the
// rent time is over; before that only the renter may, and only when the
// listing allowed premature return.
func (p *Protocol) ReturnNFT(ctx context.Context, caller, tokenContract common.Address, tokenID *big.Int) (*sequencer.Receipt, error) {
	return p.seq.Run(ctx, "returnNFT", caller, func(c *sequencer.Call) error {
		collection, err := p.collection(tokenContract)
		if err != nil {
			return err
		}
		if err := collection.ReturnNFT(p.address, caller, tokenID); err != nil {
			return err
		}
		owner, err := collection.OwnerOf(tokenID)
		if err != nil {
			return err
		}

		p.logger.WithFields(logrus.Fields{
			"token_contract": tokenContract.Hex(),
			"token_id":       tokenID.String(),
			"returned_by":    caller.Hex(),
		}).Debug("Rented NFT returned")
		c.Emit(c.NewEvent(events.RentalReturned).
			With("token_contract", tokenContract).
			With("token_id", tokenID).
			With("original_owner", owner).
			With("returned_by", caller))
		return nil
	})
}

func asset(settlementToken common.Address) string {
	if settlementToken == chain.NativeCurrency {
		return "native"
	}
	return settlementToken.Hex()
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
