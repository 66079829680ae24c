package chain

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// NativeCurrency is the settlement token sentinel for payments in the chain's native coin.
var NativeCurrency = common.Address{}

// Kind names a signed order type. The string is the EIP712 primary type.
type Kind string

const (
	KindSell            Kind = "SellBySig"
	KindSellMultiple    Kind = "SellBySigMultiple"
	KindOffer           Kind = "OfferSig"
	KindOfferMultiple   Kind = "OfferSigMultiple"
	KindAuction         Kind = "SellByAuction"
	KindAuctionMultiple Kind = "SellByAuctionMultiple"
	KindBid             Kind = "BidSignature"
	KindBidMultiple     Kind = "BidSignatureMultiple"
	KindRentListing     Kind = "rentBySig"
	KindSignedMint      Kind = "SignedMint"
)

// Type hashes. Field order is part of the signature format and must not change.
var (
	SellTypeHash = crypto.Keccak256Hash([]byte(
		"SellBySig(address seller,address tokenContract,uint256 tokenId,address settlementToken,uint256 settlementPrice,uint256 nonce)",
	))
	SellMultipleTypeHash = crypto.Keccak256Hash([]byte(
		"SellBySigMultiple(address seller,address tokenContract,uint256 tokenId,uint256 amount,address settlementToken,uint256 settlementPrice,uint256 nonce)",
	))
	OfferTypeHash = crypto.Keccak256Hash([]byte(
		"OfferSig(address buyer,address tokenContract,uint256 tokenId,address settlementToken,uint256 settlementPrice,uint256 deadline,uint256 nonce)",
	))
	OfferMultipleTypeHash = crypto.Keccak256Hash([]byte(
		"OfferSigMultiple(address buyer,address tokenContract,uint256 tokenId,uint256 amount,address settlementToken,uint256 settlementPrice,uint256 deadline,uint256 nonce)",
	))
	AuctionTypeHash = crypto.Keccak256Hash([]byte(
		"SellByAuction(address seller,address tokenContract,uint256 tokenId,address settlementToken,uint256 minimumBidPrice,uint256 reservePrice,uint256 expirationDate,uint256 nonce)",
	))
	AuctionMultipleTypeHash = crypto.Keccak256Hash([]byte(
		"SellByAuctionMultiple(address seller,address tokenContract,uint256 tokenId,uint256 amount,address settlementToken,uint256 minimumBidPrice,uint256 reservePrice,uint256 expirationDate,uint256 nonce)",
	))
	BidTypeHash = crypto.Keccak256Hash([]byte(
		"BidSignature(address bidder,address tokenContract,uint256 tokenId,address settlementToken,uint256 bidValue,uint256 nonce)",
	))
	BidMultipleTypeHash = crypto.Keccak256Hash([]byte(
		"BidSignatureMultiple(address bidder,address tokenContract,uint256 tokenId,uint256 amount,address settlementToken,uint256 bidValue,uint256 nonce)",
	))
	RentListingTypeHash = crypto.Keccak256Hash([]byte(
		"rentBySig(address originalOwner,address tokenContract,uint256 tokenId,address settlementToken,uint256 dailyPrice,bool prematureReturnAllowed,uint256 minimumDays,uint256 maximumDays,bool multipleRentSessionsAllowed,uint256 rentListingExpiry,uint256 nonce)",
	))
	SignedMintTypeHash = crypto.Keccak256Hash([]byte(
		"SignedMint(address from,uint256 tokenId,uint256 nonce)",
	))
)

// Order is one variant of the signed order family.
type Order interface {
	TypedData
	Kind() Kind
	// Initiator is the party whose signature authorizes the order.
	Initiator() common.Address
}

// Signed pairs an order with its detached signature.
type Signed[T Order] struct {
	Order     T             `json:"order"`
	Signature hexutil.Bytes `json:"signature"`
}

// Present reports whether s carries an order.
func (s *Signed[T]) Present() bool {
	if s == nil {
		return false
	}
	v := reflect.ValueOf(s.Order)
	return v.IsValid() && !(v.Kind() == reflect.Ptr && v.IsNil())
}

// CheckUint256 fails with ErrValueOutOfRange when an integer field of order
// is negative or wider than 256 bits. ABI encoding reduces such values modulo
// 2^256, so they would hash like an in-range value.
func CheckUint256(order interface{}) error {
	v := reflect.ValueOf(order)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if !t.Field(i).IsExported() {
			continue
		}
		x, ok := v.Field(i).Interface().(*big.Int)
		if !ok || x == nil {
			continue
		}
		if x.Sign() < 0 || x.BitLen() > 256 {
			return ErrValueOutOfRange.WithReason(fmt.Sprintf("%s is out of the uint256 range", t.Field(i).Name))
		}
	}
	return nil
}

// SigHash is the registry key of the signed order.
func (s *Signed[T]) SigHash() common.Hash {
	return SignatureHash(s.Signature)
}

// SellOrder lists a single ERC721 token at a fixed price.
type SellOrder struct {
	Seller          common.Address `json:"seller"`
	TokenContract   common.Address `json:"tokenContract"`
	TokenID         *big.Int       `json:"tokenId"`
	SettlementToken common.Address `json:"settlementToken"`
	SettlementPrice *big.Int       `json:"settlementPrice"`
	Nonce           *big.Int       `json:"nonce"`
}

func (o *SellOrder) Kind() Kind                { return KindSell }
func (o *SellOrder) Initiator() common.Address { return o.Seller }
func (o *SellOrder) TypeHash() common.Hash     { return SellTypeHash }

func (o *SellOrder) StructHash() common.Hash {
	return hashFields(SellTypeHash,
		address(o.Seller),
		address(o.TokenContract),
		uint256(o.TokenID),
		address(o.SettlementToken),
		uint256(o.SettlementPrice),
		uint256(o.Nonce),
	)
}

// SellOrderMultiple lists Amount units of an ERC1155 token. SettlementPrice is per unit.
type SellOrderMultiple struct {
	Seller          common.Address `json:"seller"`
	TokenContract   common.Address `json:"tokenContract"`
	TokenID         *big.Int       `json:"tokenId"`
	Amount          *big.Int       `json:"amount"`
	SettlementToken common.Address `json:"settlementToken"`
	SettlementPrice *big.Int       `json:"settlementPrice"`
	Nonce           *big.Int       `json:"nonce"`
}

func (o *SellOrderMultiple) Kind() Kind                { return KindSellMultiple }
func (o *SellOrderMultiple) Initiator() common.Address { return o.Seller }
func (o *SellOrderMultiple) TypeHash() common.Hash     { return SellMultipleTypeHash }

func (o *SellOrderMultiple) StructHash() common.Hash {
	return hashFields(SellMultipleTypeHash,
		address(o.Seller),
		address(o.TokenContract),
		uint256(o.TokenID),
		uint256(o.Amount),
		address(o.SettlementToken),
		uint256(o.SettlementPrice),
		uint256(o.Nonce),
	)
}

// Offer is a buyer's signed bid for a single ERC721 token, valid until Deadline.
type Offer struct {
	Buyer           common.Address `json:"buyer"`
	TokenContract   common.Address `json:"tokenContract"`
	TokenID         *big.Int       `json:"tokenId"`
	SettlementToken common.Address `json:"settlementToken"`
	SettlementPrice *big.Int       `json:"settlementPrice"`
	Deadline        *big.Int       `json:"deadline"`
	Nonce           *big.Int       `json:"nonce"`
}

func (o *Offer) Kind() Kind                { return KindOffer }
func (o *Offer) Initiator() common.Address { return o.Buyer }
func (o *Offer) TypeHash() common.Hash     { return OfferTypeHash }

func (o *Offer) StructHash() common.Hash {
	return hashFields(OfferTypeHash,
		address(o.Buyer),
		address(o.TokenContract),
		uint256(o.TokenID),
		address(o.SettlementToken),
		uint256(o.SettlementPrice),
		uint256(o.Deadline),
		uint256(o.Nonce),
	)
}

// OfferMultiple is an offer for Amount units of an ERC1155 token. SettlementPrice covers all units.
type OfferMultiple struct {
	Buyer           common.Address `json:"buyer"`
	TokenContract   common.Address `json:"tokenContract"`
	TokenID         *big.Int       `json:"tokenId"`
	Amount          *big.Int       `json:"amount"`
	SettlementToken common.Address `json:"settlementToken"`
	SettlementPrice *big.Int       `json:"settlementPrice"`
	Deadline        *big.Int       `json:"deadline"`
	Nonce           *big.Int       `json:"nonce"`
}

func (o *OfferMultiple) Kind() Kind                { return KindOfferMultiple }
func (o *OfferMultiple) Initiator() common.Address { return o.Buyer }
func (o *OfferMultiple) TypeHash() common.Hash     { return OfferMultipleTypeHash }

func (o *OfferMultiple) StructHash() common.Hash {
	return hashFields(OfferMultipleTypeHash,
		address(o.Buyer),
		address(o.TokenContract),
		uint256(o.TokenID),
		uint256(o.Amount),
		address(o.SettlementToken),
		uint256(o.SettlementPrice),
		uint256(o.Deadline),
		uint256(o.Nonce),
	)
}

// Auction lists a single ERC721 token for bids settled after ExpirationDate.
type Auction struct {
	Seller          common.Address `json:"seller"`
	TokenContract   common.Address `json:"tokenContract"`
	TokenID         *big.Int       `json:"tokenId"`
	SettlementToken common.Address `json:"settlementToken"`
	MinimumBidPrice *big.Int       `json:"minimumBidPrice"`
	ReservePrice    *big.Int       `json:"reservePrice"`
	ExpirationDate  *big.Int       `json:"expirationDate"`
	Nonce           *big.Int       `json:"nonce"`
}

func (o *Auction) Kind() Kind                { return KindAuction }
func (o *Auction) Initiator() common.Address { return o.Seller }
func (o *Auction) TypeHash() common.Hash     { return AuctionTypeHash }

func (o *Auction) StructHash() common.Hash {
	return hashFields(AuctionTypeHash,
		address(o.Seller),
		address(o.TokenContract),
		uint256(o.TokenID),
		address(o.SettlementToken),
		uint256(o.MinimumBidPrice),
		uint256(o.ReservePrice),
		uint256(o.ExpirationDate),
		uint256(o.Nonce),
	)
}

// AuctionMultiple auctions Amount units of an ERC1155 token as one lot.
type AuctionMultiple struct {
	Seller          common.Address `json:"seller"`
	TokenContract   common.Address `json:"tokenContract"`
	TokenID         *big.Int       `json:"tokenId"`
	Amount          *big.Int       `json:"amount"`
	SettlementToken common.Address `json:"settlementToken"`
	MinimumBidPrice *big.Int       `json:"minimumBidPrice"`
	ReservePrice    *big.Int       `json:"reservePrice"`
	ExpirationDate  *big.Int       `json:"expirationDate"`
	Nonce           *big.Int       `json:"nonce"`
}

func (o *AuctionMultiple) Kind() Kind                { return KindAuctionMultiple }
func (o *AuctionMultiple) Initiator() common.Address { return o.Seller }
func (o *AuctionMultiple) TypeHash() common.Hash     { return AuctionMultipleTypeHash }

func (o *AuctionMultiple) StructHash() common.Hash {
	return hashFields(AuctionMultipleTypeHash,
		address(o.Seller),
		address(o.TokenContract),
		uint256(o.TokenID),
		uint256(o.Amount),
		address(o.SettlementToken),
		uint256(o.MinimumBidPrice),
		uint256(o.ReservePrice),
		uint256(o.ExpirationDate),
		uint256(o.Nonce),
	)
}

// Bid is a bidder's signed commitment against an Auction.
type Bid struct {
	Bidder          common.Address `json:"bidder"`
	TokenContract   common.Address `json:"tokenContract"`
	TokenID         *big.Int       `json:"tokenId"`
	SettlementToken common.Address `json:"settlementToken"`
	BidValue        *big.Int       `json:"bidValue"`
	Nonce           *big.Int       `json:"nonce"`
}

func (o *Bid) Kind() Kind                { return KindBid }
func (o *Bid) Initiator() common.Address { return o.Bidder }
func (o *Bid) TypeHash() common.Hash     { return BidTypeHash }

func (o *Bid) StructHash() common.Hash {
	return hashFields(BidTypeHash,
		address(o.Bidder),
		address(o.TokenContract),
		uint256(o.TokenID),
		address(o.SettlementToken),
		uint256(o.BidValue),
		uint256(o.Nonce),
	)
}

// BidMultiple is a bid against an AuctionMultiple lot.
type BidMultiple struct {
	Bidder          common.Address `json:"bidder"`
	TokenContract   common.Address `json:"tokenContract"`
	TokenID         *big.Int       `json:"tokenId"`
	Amount          *big.Int       `json:"amount"`
	SettlementToken common.Address `json:"settlementToken"`
	BidValue        *big.Int       `json:"bidValue"`
	Nonce           *big.Int       `json:"nonce"`
}

func (o *BidMultiple) Kind() Kind                { return KindBidMultiple }
func (o *BidMultiple) Initiator() common.Address { return o.Bidder }
func (o *BidMultiple) TypeHash() common.Hash     { return BidMultipleTypeHash }

func (o *BidMultiple) StructHash() common.Hash {
	return hashFields(BidMultipleTypeHash,
		address(o.Bidder),
		address(o.TokenContract),
		uint256(o.TokenID),
		uint256(o.Amount),
		address(o.SettlementToken),
		uint256(o.BidValue),
		uint256(o.Nonce),
	)
}

// RentListing offers an ERC721 token for rent at DailyPrice per day.
type RentListing struct {
	OriginalOwner               common.Address `json:"originalOwner"`
	TokenContract               common.Address `json:"tokenContract"`
	TokenID                     *big.Int       `json:"tokenId"`
	SettlementToken             common.Address `json:"settlementToken"`
	DailyPrice                  *big.Int       `json:"dailyPrice"`
	PrematureReturnAllowed      bool           `json:"prematureReturnAllowed"`
	MinimumDays                 *big.Int       `json:"minimumDays"`
	MaximumDays                 *big.Int       `json:"maximumDays"`
	MultipleRentSessionsAllowed bool           `json:"multipleRentSessionsAllowed"`
	RentListingExpiry           *big.Int       `json:"rentListingExpiry"`
	Nonce                       *big.Int       `json:"nonce"`
}

func (o *RentListing) Kind() Kind                { return KindRentListing }
func (o *RentListing) Initiator() common.Address { return o.OriginalOwner }
func (o *RentListing) TypeHash() common.Hash     { return RentListingTypeHash }

func (o *RentListing) StructHash() common.Hash {
	return hashFields(RentListingTypeHash,
		address(o.OriginalOwner),
		address(o.TokenContract),
		uint256(o.TokenID),
		address(o.SettlementToken),
		uint256(o.DailyPrice),
		boolean(o.PrematureReturnAllowed),
		uint256(o.MinimumDays),
		uint256(o.MaximumDays),
		boolean(o.MultipleRentSessionsAllowed),
		uint256(o.RentListingExpiry),
		uint256(o.Nonce),
	)
}

// SignedMint authorizes minting TokenID to From without a prior on-chain mint.
type SignedMint struct {
	From    common.Address `json:"from"`
	TokenID *big.Int       `json:"tokenId"`
	Nonce   *big.Int       `json:"nonce"`
}

func (o *SignedMint) Kind() Kind                { return KindSignedMint }
func (o *SignedMint) Initiator() common.Address { return o.From }
func (o *SignedMint) TypeHash() common.Hash     { return SignedMintTypeHash }

func (o *SignedMint) StructHash() common.Hash {
	return hashFields(SignedMintTypeHash,
		address(o.From),
		uint256(o.TokenID),
		uint256(o.Nonce),
	)
}

type field struct {
	typ   abi.Type
	value interface{}
}

func address(a common.Address) field { return field{addressType, a} }
func uint256(x *big.Int) field       { return field{uint256Type, u256(x)} }
func boolean(b bool) field           { return field{boolType, b} }

func hashFields(typeHash common.Hash, fields ...field) common.Hash {
	arguments := make(abi.Arguments, 0, len(fields)+1)
	values := make([]interface{}, 0, len(fields)+1)

	arguments = append(arguments, abi.Argument{Type: bytes32Type})
	values = append(values, typeHash)
	for _, f := range fields {
		arguments = append(arguments, abi.Argument{Type: f.typ})
		values = append(values, f.value)
	}
	return encodeHash(arguments, values...)
}
