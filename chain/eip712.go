package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EIP712 Domain constants for the contracts that verify signed orders
const (
	MarketplaceDomainName    = "NFTSpace Marketplace"
	MarketplaceDomainVersion = "0.0.1"

	RentingDomainName    = "NFTSpace NFT Renting Protocol"
	RentingDomainVersion = "0.0.3"

	CollectionDomainName    = "NFT Collection"
	CollectionDomainVersion = "0.0.1"
)

// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
var EIP712DomainTypeHash = crypto.Keccak256Hash([]byte(
	"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
))

var (
	bytes32Type, _ = abi.NewType("bytes32", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	boolType, _    = abi.NewType("bool", "", nil)
)

// EIP712Domain represents the EIP712 domain separator data
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewMarketplaceDomain returns the domain orders settled by a marketplace are signed under.
func NewMarketplaceDomain(chainID *big.Int, verifyingContract common.Address) *EIP712Domain {
	return &EIP712Domain{
		Name:              MarketplaceDomainName,
		Version:           MarketplaceDomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// NewRentingDomain returns the domain rent listings are signed under.
func NewRentingDomain(chainID *big.Int, verifyingContract common.Address) *EIP712Domain {
	return &EIP712Domain{
		Name:              RentingDomainName,
		Version:           RentingDomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// NewCollectionDomain returns the domain lazy-mint vouchers of one collection are signed under.
func NewCollectionDomain(chainID *big.Int, collection common.Address) *EIP712Domain {
	return &EIP712Domain{
		Name:              CollectionDomainName,
		Version:           CollectionDomainVersion,
		ChainID:           chainID,
		VerifyingContract: collection,
	}
}

// Hash computes the EIP712 domain separator hash
func (d *EIP712Domain) Hash() common.Hash {
	// typeHash ++ keccak256(name) ++ keccak256(version) ++ chainId ++ verifyingContract
	return encodeHash(
		abi.Arguments{
			{Type: bytes32Type},
			{Type: bytes32Type},
			{Type: bytes32Type},
			{Type: uint256Type},
			{Type: addressType},
		},
		EIP712DomainTypeHash,
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		u256(d.ChainID),
		d.VerifyingContract,
	)
}

// TypedData is a struct that can be hashed per EIP712.
type TypedData interface {
	TypeHash() common.Hash
	StructHash() common.Hash
}

// CreateSignHash creates the final EIP712 hash to be signed
// keccak256("\x19\x01" ++ domainSeparator ++ structHash)
func CreateSignHash(domain *EIP712Domain, data TypedData) common.Hash {
	domainSeparator := domain.Hash()
	structHash := data.StructHash()

	buf := make([]byte, 0, 2+32+32)
	buf = append(buf, 0x19, 0x01)
	buf = append(buf, domainSeparator.Bytes()...)
	buf = append(buf, structHash.Bytes()...)

	return crypto.Keccak256Hash(buf)
}

func encodeHash(arguments abi.Arguments, values ...interface{}) common.Hash {
	encoded, err := arguments.Pack(values...)
	if err != nil {
		panic("failed to encode typed data: " + err.Error())
	}
	return crypto.Keccak256Hash(encoded)
}

// u256 treats a nil amount as zero so unset optional fields still hash.
func u256(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
