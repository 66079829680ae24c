// Package nftspace is the participant SDK of the NFTSpace settlement engine.
// A Client holds one signing key. It builds and signs orders under the
// marketplace and renting domains, submits them on behalf of its account and
// can check an order's preconditions against a live chain before it is
// shared.
package nftspace

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/market"
	"github.com/kaifufi/nftspace-settlement-go/renting"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// ChainReader answers the read-only token queries used by preflight checks.
// *chain.ContractCaller implements it.
type ChainReader interface {
	OwnerOf(ctx context.Context, token common.Address, tokenID *big.Int) (common.Address, error)
	IsApprovedForAll(ctx context.Context, token, owner, operator common.Address) (bool, error)
	SupportsInterface(ctx context.Context, token common.Address, interfaceID [4]byte) (bool, error)
	BalanceOf1155(ctx context.Context, token, account common.Address, id *big.Int) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
}

// Client is the main SDK client
type Client struct {
	signer      *chain.OrderSigner
	chainID     ChainID
	marketplace *market.Marketplace
	renting     *renting.Protocol
	reader      ChainReader
	logger      *logrus.Logger
}

// ClientConfig holds configuration for creating a Client
type ClientConfig struct {
	ChainID    ChainID
	PrivateKey string
	// Marketplace and Renting are the engines orders are signed for and
	// submitted to. Either may be nil when unused.
	Marketplace *market.Marketplace
	Renting     *renting.Protocol
	// Chain enables the Preflight checks. Optional.
	Chain  ChainReader
	Logger *logrus.Logger
}

// NewClient creates a new NFTSpace SDK client
func NewClient(config ClientConfig) (*Client, error) {
	if !config.ChainID.Supported() {
		return nil, &InvalidParamError{
			Message: fmt.Sprintf("chain_id must be one of %v", SupportedChainIDs),
		}
	}
	if config.Marketplace != nil {
		if err := checkDomain("marketplace", config.Marketplace.Domain(), config.ChainID); err != nil {
			return nil, err
		}
	}
	if config.Renting != nil {
		if err := checkDomain("renting protocol", config.Renting.Domain(), config.ChainID); err != nil {
			return nil, err
		}
	}

	signer, err := chain.NewOrderSignerFromHex(config.PrivateKey)
	if err != nil {
		return nil, &InvalidParamError{Message: err.Error()}
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		signer:      signer,
		chainID:     config.ChainID,
		marketplace: config.Marketplace,
		renting:     config.Renting,
		reader:      config.Chain,
		logger:      logger,
	}, nil
}

func checkDomain(name string, domain *chain.EIP712Domain, id ChainID) error {
	if domain.ChainID.Cmp(id.BigInt()) != 0 {
		return &InvalidParamError{
			Message: fmt.Sprintf("%s is deployed on chain %s, not %d", name, domain.ChainID, id),
		}
	}
	return nil
}

// Address returns the account the client signs and submits for.
func (c *Client) Address() common.Address {
	return c.signer.Address()
}

// ChainID returns the chain the client signs for.
func (c *Client) ChainID() ChainID {
	return c.chainID
}

// Close closes the client and cleans up resources
func (c *Client) Close() {
	if closer, ok := c.reader.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (c *Client) market() (*market.Marketplace, error) {
	if c.marketplace == nil {
		return nil, fmt.Errorf("marketplace: %w", ErrNotConfigured)
	}
	return c.marketplace, nil
}

func (c *Client) rentingProtocol() (*renting.Protocol, error) {
	if c.renting == nil {
		return nil, fmt.Errorf("renting protocol: %w", ErrNotConfigured)
	}
	return c.renting, nil
}

// Status returns the registry state of a signed marketplace order. total is
// the signed unit amount of a multi-unit order and nil otherwise.
func (c *Client) Status(ctx context.Context, sigHash common.Hash, total *big.Int) (*OrderStatus, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	cancelled, err := m.IsCancelled(ctx, sigHash)
	if err != nil {
		return nil, err
	}
	fill, err := m.FillOf(ctx, sigHash)
	if err != nil {
		return nil, err
	}
	status := &OrderStatus{
		SigHash:      sigHash,
		Cancelled:    cancelled,
		AmountFilled: fill.AmountFilled,
	}
	if total != nil {
		if status.AmountAvailable, err = m.AmountAvailable(ctx, sigHash, total); err != nil {
			return nil, err
		}
	}
	return status, nil
}

// Buy settles a sell order with the client as buyer. value is the native
// coin attached to the call and may be nil for ERC20 orders.
func (c *Client) Buy(ctx context.Context, sell *chain.Signed[*chain.SellOrder], value *big.Int) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("buy", func() (*sequencer.Receipt, error) {
		return m.BuyBySig(ctx, c.Address(), sell, value)
	})
}

// BuyMultiple buys amount units of one ERC1155 token across orders.
func (c *Client) BuyMultiple(ctx context.Context, tokenContract common.Address, amount *big.Int, orders []*chain.Signed[*chain.SellOrderMultiple], value *big.Int) (*sequencer.Receipt, error) {
	if err := positive("amount", amount); err != nil {
		return nil, err
	}
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("buyMultiple", func() (*sequencer.Receipt, error) {
		return m.BuyBySigMulti(ctx, c.Address(), tokenContract, amount, orders, value)
	})
}

// MintAndBuy redeems a lazy-mint voucher and settles the matching sell order.
func (c *Client) MintAndBuy(ctx context.Context, mint *chain.Signed[*chain.SignedMint], sell *chain.Signed[*chain.SellOrder], value *big.Int) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("mintAndBuy", func() (*sequencer.Receipt, error) {
		return m.MintWithSignatureAndBuyBySig(ctx, c.Address(), mint, sell, value)
	})
}

// AcceptOffer sells the client's token to the offer's buyer.
func (c *Client) AcceptOffer(ctx context.Context, offer *chain.Signed[*chain.Offer]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("acceptOffer", func() (*sequencer.Receipt, error) {
		return m.AcceptOfferSig(ctx, c.Address(), offer)
	})
}

// AcceptOfferMultiple sells ERC1155 units to a multi-unit offer's buyer.
func (c *Client) AcceptOfferMultiple(ctx context.Context, offer *chain.Signed[*chain.OfferMultiple]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("acceptOfferMultiple", func() (*sequencer.Receipt, error) {
		return m.AcceptOfferSigMulti(ctx, c.Address(), offer)
	})
}

// AcceptBid settles an expired auction against a bid.
func (c *Client) AcceptBid(ctx context.Context, bid *chain.Signed[*chain.Bid], auction *chain.Signed[*chain.Auction]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("acceptBid", func() (*sequencer.Receipt, error) {
		return m.AcceptBid(ctx, c.Address(), bid, auction)
	})
}

// AcceptBidMultiple settles an expired multi-unit auction against a bid.
func (c *Client) AcceptBidMultiple(ctx context.Context, bid *chain.Signed[*chain.BidMultiple], auction *chain.Signed[*chain.AuctionMultiple]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("acceptBidMultiple", func() (*sequencer.Receipt, error) {
		return m.AcceptBidMultiple(ctx, c.Address(), bid, auction)
	})
}

// Rent rents the token of listing for days days.
func (c *Client) Rent(ctx context.Context, days uint64, listing *chain.Signed[*chain.RentListing], value *big.Int) (*sequencer.Receipt, error) {
	if days == 0 {
		return nil, &InvalidParamError{Message: "days must be a positive integer"}
	}
	p, err := c.rentingProtocol()
	if err != nil {
		return nil, err
	}
	return c.observe("rent", func() (*sequencer.Receipt, error) {
		return p.RentWithSig(ctx, c.Address(), days, listing, value)
	})
}

// ReturnRental ends the rent session of a token.
func (c *Client) ReturnRental(ctx context.Context, tokenContract common.Address, tokenID *big.Int) (*sequencer.Receipt, error) {
	if err := positiveOrZero("token_id", tokenID); err != nil {
		return nil, err
	}
	p, err := c.rentingProtocol()
	if err != nil {
		return nil, err
	}
	return c.observe("returnRental", func() (*sequencer.Receipt, error) {
		return p.ReturnNFT(ctx, c.Address(), tokenContract, tokenID)
	})
}

// CancelSell voids one of the client's sell orders.
func (c *Client) CancelSell(ctx context.Context, sell *chain.Signed[*chain.SellOrder]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelSell", func() (*sequencer.Receipt, error) {
		return m.CancelSellSig(ctx, c.Address(), sell)
	})
}

// CancelSellMultiple voids one of the client's multi-unit sell orders.
func (c *Client) CancelSellMultiple(ctx context.Context, sell *chain.Signed[*chain.SellOrderMultiple]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelSellMultiple", func() (*sequencer.Receipt, error) {
		return m.CancelSellSigMultiple(ctx, c.Address(), sell)
	})
}

// CancelOffer voids one of the client's offers.
func (c *Client) CancelOffer(ctx context.Context, offer *chain.Signed[*chain.Offer]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelOffer", func() (*sequencer.Receipt, error) {
		return m.CancelOfferSig(ctx, c.Address(), offer)
	})
}

// CancelOfferMultiple voids one of the client's multi-unit offers.
func (c *Client) CancelOfferMultiple(ctx context.Context, offer *chain.Signed[*chain.OfferMultiple]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelOfferMultiple", func() (*sequencer.Receipt, error) {
		return m.CancelOfferSigMultiple(ctx, c.Address(), offer)
	})
}

// CancelAuction voids one of the client's auctions.
func (c *Client) CancelAuction(ctx context.Context, auction *chain.Signed[*chain.Auction]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelAuction", func() (*sequencer.Receipt, error) {
		return m.CancelAuctionSig(ctx, c.Address(), auction)
	})
}

// CancelAuctionMultiple voids one of the client's multi-unit auctions.
func (c *Client) CancelAuctionMultiple(ctx context.Context, auction *chain.Signed[*chain.AuctionMultiple]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelAuctionMultiple", func() (*sequencer.Receipt, error) {
		return m.CancelAuctionSigMultiple(ctx, c.Address(), auction)
	})
}

// CancelBid voids one of the client's bids.
func (c *Client) CancelBid(ctx context.Context, bid *chain.Signed[*chain.Bid]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelBid", func() (*sequencer.Receipt, error) {
		return m.CancelBidSig(ctx, c.Address(), bid)
	})
}

// CancelBidMultiple voids one of the client's multi-unit bids.
func (c *Client) CancelBidMultiple(ctx context.Context, bid *chain.Signed[*chain.BidMultiple]) (*sequencer.Receipt, error) {
	m, err := c.market()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelBidMultiple", func() (*sequencer.Receipt, error) {
		return m.CancelBidSigMulti(ctx, c.Address(), bid)
	})
}

// CancelRentListing voids one of the client's rent listings.
func (c *Client) CancelRentListing(ctx context.Context, listing *chain.Signed[*chain.RentListing]) (*sequencer.Receipt, error) {
	p, err := c.rentingProtocol()
	if err != nil {
		return nil, err
	}
	return c.observe("cancelRentListing", func() (*sequencer.Receipt, error) {
		return p.CancelRentSig(ctx, c.Address(), listing)
	})
}

func (c *Client) observe(op string, submit func() (*sequencer.Receipt, error)) (*sequencer.Receipt, error) {
	receipt, err := submit()
	entry := c.logger.WithFields(logrus.Fields{
		"op":      op,
		"account": c.Address().Hex(),
	})
	if err != nil {
		entry.WithError(err).Debug("Submission rejected")
		return nil, err
	}
	entry.WithFields(logrus.Fields{
		"call_id": receipt.ID.String(),
		"events":  len(receipt.Events),
	}).Debug("Submission settled")
	return receipt, nil
}
