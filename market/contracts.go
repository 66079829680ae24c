package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
	"github.com/kaifufi/nftspace-settlement-go/payment"
	"github.com/kaifufi/nftspace-settlement-go/sequencer"
)

// Backend is the chain a marketplace is deployed on.
type Backend interface {
	sequencer.Host
	ChainID() *big.Int
	NewAddress() common.Address
	Register(addr common.Address, contract interface{})
	Contract(addr common.Address) (interface{}, bool)
	TransferNative(from, to common.Address, value *big.Int) error
}

// ERC721 is the non-fungible collection surface the marketplace settles against.
type ERC721 interface {
	SupportsInterface(id [4]byte) bool
	OwnerOf(tokenID *big.Int) (common.Address, error)
	IsApprovedForAll(owner, operator common.Address) bool
	SafeTransferFrom(caller, from, to common.Address, tokenID *big.Int) error
}

// LazyMinter is an ERC721 collection that mints from signed vouchers.
type LazyMinter interface {
	ERC721
	MintWithSignature(mint *chain.Signed[*chain.SignedMint]) error
}

// ERC1155 is the multi-token collection surface the marketplace settles against.
type ERC1155 interface {
	SupportsInterface(id [4]byte) bool
	BalanceOf(account common.Address, id *big.Int) *big.Int
	IsApprovedForAll(owner, operator common.Address) bool
	SafeTransferFrom(caller, from, to common.Address, id, amount *big.Int) error
}

func (m *Marketplace) erc721(addr common.Address) (ERC721, error) {
	if c, ok := m.backend.Contract(addr); ok {
		if nft, ok := c.(ERC721); ok && nft.SupportsInterface(chain.InterfaceIDERC721) {
			return nft, nil
		}
	}
	return nil, chain.ErrInvalidTokenContract
}

func (m *Marketplace) lazyMinter(addr common.Address) (LazyMinter, error) {
	if c, ok := m.backend.Contract(addr); ok {
		if nft, ok := c.(LazyMinter); ok && nft.SupportsInterface(chain.InterfaceIDERC721) {
			return nft, nil
		}
	}
	return nil, chain.ErrInvalidTokenContract
}

func (m *Marketplace) erc1155(addr common.Address) (ERC1155, error) {
	if c, ok := m.backend.Contract(addr); ok {
		if sft, ok := c.(ERC1155); ok && sft.SupportsInterface(chain.InterfaceIDERC1155) {
			return sft, nil
		}
	}
	return nil, chain.ErrInvalidTokenContract
}

func (m *Marketplace) erc20(addr common.Address) (payment.Token, bool) {
	c, ok := m.backend.Contract(addr)
	if !ok {
		return nil, false
	}
	token, ok := c.(payment.Token)
	return token, ok
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
