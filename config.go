package nftspace

import "math/big"

// ChainID represents a blockchain chain ID
type ChainID int64

const (
	ChainIDEthereum   ChainID = 1        // Ethereum mainnet
	ChainIDBNBMainnet ChainID = 56       // BNB Chain (BSC) mainnet
	ChainIDBNBTestnet ChainID = 97       // BNB Chain testnet
	ChainIDPolygon    ChainID = 137      // Polygon PoS
	ChainIDLocal      ChainID = 1337     // single in-memory node
	ChainIDHardhat    ChainID = 31337    // local development chain
	ChainIDSepolia    ChainID = 11155111 // Ethereum testnet
)

// SupportedChainIDs lists all supported chain IDs
var SupportedChainIDs = []ChainID{
	ChainIDEthereum,
	ChainIDBNBMainnet,
	ChainIDBNBTestnet,
	ChainIDPolygon,
	ChainIDLocal,
	ChainIDHardhat,
	ChainIDSepolia,
}

// Supported reports whether id is one of SupportedChainIDs.
func (id ChainID) Supported() bool {
	for _, supported := range SupportedChainIDs {
		if id == supported {
			return true
		}
	}
	return false
}

// BigInt returns id as used in EIP712 domains.
func (id ChainID) BigInt() *big.Int {
	return big.NewInt(int64(id))
}
