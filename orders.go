package nftspace

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
)

// NewSellOrder builds and signs a fixed price listing of one ERC721 token.
func (c *Client) NewSellOrder(input SellInput) (*chain.Signed[*chain.SellOrder], error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	if err := validate(
		nonZero("token_contract", input.TokenContract),
		positiveOrZero("token_id", input.TokenID),
		positive("price", input.Price),
	); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, m.Domain(), &chain.SellOrder{
		Seller:          c.Address(),
		TokenContract:   input.TokenContract,
		TokenID:         input.TokenID,
		SettlementToken: input.SettlementToken,
		SettlementPrice: input.Price,
		Nonce:           nonce,
	})
}

// NewSellOrderMultiple builds and signs a listing of ERC1155 units.
func (c *Client) NewSellOrderMultiple(input SellMultipleInput) (*chain.Signed[*chain.SellOrderMultiple], error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	if err := validate(
		nonZero("token_contract", input.TokenContract),
		positiveOrZero("token_id", input.TokenID),
		positive("amount", input.Amount),
		positive("unit_price", input.UnitPrice),
	); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, m.Domain(), &chain.SellOrderMultiple{
		Seller:          c.Address(),
		TokenContract:   input.TokenContract,
		TokenID:         input.TokenID,
		Amount:          input.Amount,
		SettlementToken: input.SettlementToken,
		SettlementPrice: input.UnitPrice,
		Nonce:           nonce,
	})
}

// NewOffer builds and signs an offer for one ERC721 token. Offers settle in
// ERC20 tokens only.
func (c *Client) NewOffer(input OfferInput) (*chain.Signed[*chain.Offer], error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	if err := validate(
		nonZero("token_contract", input.TokenContract),
		nonZero("settlement_token", input.SettlementToken),
		positiveOrZero("token_id", input.TokenID),
		positive("price", input.Price),
	); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, m.Domain(), &chain.Offer{
		Buyer:           c.Address(),
		TokenContract:   input.TokenContract,
		TokenID:         input.TokenID,
		SettlementToken: input.SettlementToken,
		SettlementPrice: input.Price,
		Deadline:        new(big.Int).SetUint64(input.Deadline),
		Nonce:           nonce,
	})
}

// NewOfferMultiple builds and signs an offer for ERC1155 units.
func (c *Client) NewOfferMultiple(input OfferMultipleInput) (*chain.Signed[*chain.OfferMultiple], error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	if err := validate(
		nonZero("token_contract", input.TokenContract),
		nonZero("settlement_token", input.SettlementToken),
		positiveOrZero("token_id", input.TokenID),
		positive("amount", input.Amount),
		positive("price", input.Price),
	); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, m.Domain(), &chain.OfferMultiple{
		Buyer:           c.Address(),
		TokenContract:   input.TokenContract,
		TokenID:         input.TokenID,
		Amount:          input.Amount,
		SettlementToken: input.SettlementToken,
		SettlementPrice: input.Price,
		Deadline:        new(big.Int).SetUint64(input.Deadline),
		Nonce:           nonce,
	})
}

// NewAuction builds and signs an auction of one ERC721 token.
func (c *Client) NewAuction(input AuctionInput) (*chain.Signed[*chain.Auction], error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	if err := validateAuction(input.TokenContract, input.SettlementToken, input.TokenID, input.MinimumBid, input.ReservePrice, input.ExpirationDate); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, m.Domain(), &chain.Auction{
		Seller:          c.Address(),
		TokenContract:   input.TokenContract,
		TokenID:         input.TokenID,
		SettlementToken: input.SettlementToken,
		MinimumBidPrice: input.MinimumBid,
		ReservePrice:    orZero(input.ReservePrice),
		ExpirationDate:  new(big.Int).SetUint64(input.ExpirationDate),
		Nonce:           nonce,
	})
}

// NewAuctionMultiple builds and signs an auction of ERC1155 units.
func (c *Client) NewAuctionMultiple(input AuctionMultipleInput) (*chain.Signed[*chain.AuctionMultiple], error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	if err := validateAuction(input.TokenContract, input.SettlementToken, input.TokenID, input.MinimumBid, input.ReservePrice, input.ExpirationDate); err != nil {
		return nil, err
	}
	if err := positive("amount", input.Amount); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, m.Domain(), &chain.AuctionMultiple{
		Seller:          c.Address(),
		TokenContract:   input.TokenContract,
		TokenID:         input.TokenID,
		Amount:          input.Amount,
		SettlementToken: input.SettlementToken,
		MinimumBidPrice: input.MinimumBid,
		ReservePrice:    orZero(input.ReservePrice),
		ExpirationDate:  new(big.Int).SetUint64(input.ExpirationDate),
		Nonce:           nonce,
	})
}

func validateAuction(tokenContract, settlementToken common.Address, tokenID, minimumBid, reserve *big.Int, expiration uint64) error {
	if err := validate(
		nonZero("token_contract", tokenContract),
		nonZero("settlement_token", settlementToken),
		positiveOrZero("token_id", tokenID),
		positive("minimum_bid", minimumBid),
	); err != nil {
		return err
	}
	if expiration == 0 {
		return &InvalidParamError{Message: "expiration_date must be set"}
	}
	return positiveOrZero("reserve_price", orZero(reserve))
}

// NewBid builds and signs a bid of value against auction.
func (c *Client) NewBid(auction *chain.Signed[*chain.Auction], value *big.Int) (*chain.Signed[*chain.Bid], error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	if !auction.Present() {
		return nil, &InvalidParamError{Message: "auction is required"}
	}
	if err := bidValue(value, auction.Order.MinimumBidPrice); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, m.Domain(), &chain.Bid{
		Bidder:          c.Address(),
		TokenContract:   auction.Order.TokenContract,
		TokenID:         auction.Order.TokenID,
		SettlementToken: auction.Order.SettlementToken,
		BidValue:        value,
		Nonce:           nonce,
	})
}

// NewBidMultiple builds and signs a bid of value for the whole lot of auction.
func (c *Client) NewBidMultiple(auction *chain.Signed[*chain.AuctionMultiple], value *big.Int) (*chain.Signed[*chain.BidMultiple], error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	if !auction.Present() {
		return nil, &InvalidParamError{Message: "auction is required"}
	}
	if err := bidValue(value, auction.Order.MinimumBidPrice); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, m.Domain(), &chain.BidMultiple{
		Bidder:          c.Address(),
		TokenContract:   auction.Order.TokenContract,
		TokenID:         auction.Order.TokenID,
		Amount:          auction.Order.Amount,
		SettlementToken: auction.Order.SettlementToken,
		BidValue:        value,
		Nonce:           nonce,
	})
}

func bidValue(value, minimum *big.Int) error {
	if err := positive("bid_value", value); err != nil {
		return err
	}
	if minimum != nil && value.Cmp(minimum) < 0 {
		return &InvalidParamError{Message: fmt.Sprintf("bid_value must be at least %s", minimum)}
	}
	return nil
}

// NewRentListing builds and signs a rent listing under the renting domain.
func (c *Client) NewRentListing(input RentListingInput) (*chain.Signed[*chain.RentListing], error) {
	p, err := c.rentingProtocol()
	if err != nil {
		return nil, err
	}
	if err := validate(
		nonZero("token_contract", input.TokenContract),
		positiveOrZero("token_id", input.TokenID),
		positive("daily_price", input.DailyPrice),
	); err != nil {
		return nil, err
	}
	if input.MinimumDays == 0 || input.MaximumDays < input.MinimumDays {
		return nil, &InvalidParamError{
			Message: fmt.Sprintf("rental period must satisfy 0 < minimum_days <= maximum_days, got %d..%d", input.MinimumDays, input.MaximumDays),
		}
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, p.Domain(), &chain.RentListing{
		OriginalOwner:               c.Address(),
		TokenContract:               input.TokenContract,
		TokenID:                     input.TokenID,
		SettlementToken:             input.SettlementToken,
		DailyPrice:                  input.DailyPrice,
		PrematureReturnAllowed:      input.PrematureReturnAllowed,
		MinimumDays:                 new(big.Int).SetUint64(input.MinimumDays),
		MaximumDays:                 new(big.Int).SetUint64(input.MaximumDays),
		MultipleRentSessionsAllowed: input.MultipleRentSessionsAllowed,
		RentListingExpiry:           new(big.Int).SetUint64(input.Expiry),
		Nonce:                       nonce,
	})
}

// NewSignedMint signs a lazy-mint voucher for tokenID of collection. The
// client's account must be an admin of the collection for it to redeem.
func (c *Client) NewSignedMint(collection common.Address, tokenID *big.Int) (*chain.Signed[*chain.SignedMint], error) {
	if err := validate(
		nonZero("collection", collection),
		positiveOrZero("token_id", tokenID),
	); err != nil {
		return nil, err
	}
	nonce, err := chain.RandomNonce()
	if err != nil {
		return nil, err
	}
	return chain.Sign(c.signer, chain.NewCollectionDomain(c.chainID.BigInt(), collection), &chain.SignedMint{
		From:    c.Address(),
		TokenID: tokenID,
		Nonce:   nonce,
	})
}

func validate(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func nonZero(name string, addr common.Address) error {
	if addr == (common.Address{}) {
		return &InvalidParamError{Message: fmt.Sprintf("%s cannot be the zero address", name)}
	}
	return nil
}

func positive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return &InvalidParamError{Message: fmt.Sprintf("%s must be a positive integer", name)}
	}
	return nil
}

func positiveOrZero(name string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return &InvalidParamError{Message: fmt.Sprintf("%s must be a non-negative integer", name)}
	}
	return nil
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
