package nftspace

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
)

func (c *Client) chainReader() (ChainReader, error) {
	if c.reader == nil {
		return nil, fmt.Errorf("chain reader: %w", ErrNotConfigured)
	}
	return c.reader, nil
}

// PreflightSell checks that the seller of order still owns the token and
// has approved the marketplace to move it.
func (c *Client) PreflightSell(ctx context.Context, order *chain.SellOrder) error {
	m, err := c.market()
	if err != nil {
		return err
	}
	return c.preflightERC721(ctx, order.TokenContract, order.TokenID, order.Seller, m.Address())
}

// PreflightSellMultiple checks the seller's ERC1155 balance and approval.
func (c *Client) PreflightSellMultiple(ctx context.Context, order *chain.SellOrderMultiple) error {
	m, err := c.market()
	if err != nil {
		return err
	}
	reader, err := c.chainReader()
	if err != nil {
		return err
	}

	supported, err := reader.SupportsInterface(ctx, order.TokenContract, chain.InterfaceIDERC1155)
	if err != nil {
		return err
	}
	if !supported {
		return &PreflightError{Check: "interface", Err: ErrUnsupportedContract}
	}
	balance, err := reader.BalanceOf1155(ctx, order.TokenContract, order.Seller, order.TokenID)
	if err != nil {
		return err
	}
	if balance.Cmp(orZero(order.Amount)) < 0 {
		return &PreflightError{Check: "balance", Err: fmt.Errorf("%w: have %s, listed %s", ErrBalanceNotEnough, balance, orZero(order.Amount))}
	}
	return c.preflightOperator(ctx, reader, order.TokenContract, order.Seller, m.Address())
}

// PreflightOffer checks that the offer's buyer holds and has approved the
// offered amount for the marketplace.
func (c *Client) PreflightOffer(ctx context.Context, offer *chain.Offer) error {
	m, err := c.market()
	if err != nil {
		return err
	}
	return c.PreflightPayment(ctx, offer.Buyer, offer.SettlementToken, m.Address(), offer.SettlementPrice)
}

// PreflightRent checks that listing's token is an ERC721 owned by its
// original owner and that renter can pay for days.
func (c *Client) PreflightRent(ctx context.Context, listing *chain.RentListing, renter common.Address, days uint64) error {
	p, err := c.rentingProtocol()
	if err != nil {
		return err
	}
	reader, err := c.chainReader()
	if err != nil {
		return err
	}
	if err := c.preflightOwner(ctx, reader, listing.TokenContract, listing.TokenID, listing.OriginalOwner); err != nil {
		return err
	}
	if listing.SettlementToken == chain.NativeCurrency {
		return nil
	}
	return c.PreflightPayment(ctx, renter, listing.SettlementToken, p.Address(), RentPrice(orZero(listing.DailyPrice), days))
}

// PreflightPayment checks that payer holds amount of an ERC20 token and
// has approved spender for it. Native payments are not checked.
func (c *Client) PreflightPayment(ctx context.Context, payer, token, spender common.Address, amount *big.Int) error {
	if token == chain.NativeCurrency {
		return nil
	}
	reader, err := c.chainReader()
	if err != nil {
		return err
	}
	amount = orZero(amount)

	balance, err := reader.BalanceOf(ctx, token, payer)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return &PreflightError{Check: "balance", Err: fmt.Errorf("%w: have %s, need %s", ErrBalanceNotEnough, balance, amount)}
	}
	allowance, err := reader.Allowance(ctx, token, payer, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return &PreflightError{Check: "allowance", Err: fmt.Errorf("%w: have %s, need %s", ErrAllowanceNotEnough, allowance, amount)}
	}
	return nil
}

func (c *Client) preflightERC721(ctx context.Context, token common.Address, tokenID *big.Int, owner, operator common.Address) error {
	reader, err := c.chainReader()
	if err != nil {
		return err
	}
	if err := c.preflightOwner(ctx, reader, token, tokenID, owner); err != nil {
		return err
	}
	return c.preflightOperator(ctx, reader, token, owner, operator)
}

func (c *Client) preflightOwner(ctx context.Context, reader ChainReader, token common.Address, tokenID *big.Int, owner common.Address) error {
	supported, err := reader.SupportsInterface(ctx, token, chain.InterfaceIDERC721)
	if err != nil {
		return err
	}
	if !supported {
		return &PreflightError{Check: "interface", Err: ErrUnsupportedContract}
	}
	actual, err := reader.OwnerOf(ctx, token, tokenID)
	if err != nil {
		return err
	}
	if actual != owner {
		return &PreflightError{Check: "ownership", Err: fmt.Errorf("%w: token is held by %s", ErrNotOwner, actual.Hex())}
	}
	return nil
}

func (c *Client) preflightOperator(ctx context.Context, reader ChainReader, token, owner, operator common.Address) error {
	approved, err := reader.IsApprovedForAll(ctx, token, owner, operator)
	if err != nil {
		return err
	}
	if !approved {
		return &PreflightError{Check: "approval", Err: ErrNotApproved}
	}
	return nil
}
