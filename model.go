package nftspace

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SellInput describes a fixed price listing of one ERC721 token
type SellInput struct {
	TokenContract   common.Address
	TokenID         *big.Int
	SettlementToken common.Address // NativeCurrency for the chain's coin
	Price           *big.Int
}

// SellMultipleInput describes a listing of Amount ERC1155 units at UnitPrice each
type SellMultipleInput struct {
	TokenContract   common.Address
	TokenID         *big.Int
	Amount          *big.Int
	SettlementToken common.Address
	UnitPrice       *big.Int
}

// OfferInput describes an offer for one ERC721 token, valid until Deadline
// (unix seconds, 0 for no deadline)
type OfferInput struct {
	TokenContract   common.Address
	TokenID         *big.Int
	SettlementToken common.Address
	Price           *big.Int
	Deadline        uint64
}

// OfferMultipleInput describes an offer of Price for Amount ERC1155 units
type OfferMultipleInput struct {
	TokenContract   common.Address
	TokenID         *big.Int
	Amount          *big.Int
	SettlementToken common.Address
	Price           *big.Int
	Deadline        uint64
}

// AuctionInput describes an auction of one ERC721 token
type AuctionInput struct {
	TokenContract   common.Address
	TokenID         *big.Int
	SettlementToken common.Address
	MinimumBid      *big.Int
	ReservePrice    *big.Int
	ExpirationDate  uint64
}

// AuctionMultipleInput describes an auction of Amount ERC1155 units as one lot
type AuctionMultipleInput struct {
	TokenContract   common.Address
	TokenID         *big.Int
	Amount          *big.Int
	SettlementToken common.Address
	MinimumBid      *big.Int
	ReservePrice    *big.Int
	ExpirationDate  uint64
}

// RentListingInput describes a rent listing of one ERC721 token
type RentListingInput struct {
	TokenContract               common.Address
	TokenID                     *big.Int
	SettlementToken             common.Address
	DailyPrice                  *big.Int
	MinimumDays                 uint64
	MaximumDays                 uint64
	PrematureReturnAllowed      bool
	MultipleRentSessionsAllowed bool
	Expiry                      uint64 // unix seconds, 0 for no expiry
}

// OrderStatus is the registry view of one signed order
type OrderStatus struct {
	SigHash      common.Hash
	Cancelled    bool
	AmountFilled *big.Int
	// AmountAvailable is only set for multi-unit orders
	AmountAvailable *big.Int
}
