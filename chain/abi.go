package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ERC165 interface identifiers
var (
	InterfaceIDERC165  = [4]byte{0x01, 0xff, 0xc9, 0xa7}
	InterfaceIDERC721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	InterfaceIDERC1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
)

// ERC20 ABI JSON for the read calls used during preflight
const erc20ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"type": "function"
	}
]`

// ERC721 ABI JSON for ownerOf, isApprovedForAll and supportsInterface
const erc721ABIJSON = `[
	{
		"constant": true,
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"name": "ownerOf",
		"outputs": [{"name": "", "type": "address"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "interfaceId", "type": "bytes4"}],
		"name": "supportsInterface",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// ERC1155 ABI JSON for balanceOf, isApprovedForAll and supportsInterface
const erc1155ABIJSON = `[
	{
		"constant": true,
		"inputs": [
			{"name": "account", "type": "address"},
			{"name": "id", "type": "uint256"}
		],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [
			{"name": "account", "type": "address"},
			{"name": "operator", "type": "address"}
		],
		"name": "isApprovedForAll",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [{"name": "interfaceId", "type": "bytes4"}],
		"name": "supportsInterface",
		"outputs": [{"name": "", "type": "bool"}],
		"type": "function"
	}
]`

// GetERC20ABI returns the parsed ERC20 ABI
func GetERC20ABI() abi.ABI {
	return mustParseABI("ERC20", erc20ABIJSON)
}

// GetERC721ABI returns the parsed ERC721 ABI
func GetERC721ABI() abi.ABI {
	return mustParseABI("ERC721", erc721ABIJSON)
}

// GetERC1155ABI returns the parsed ERC1155 ABI
func GetERC1155ABI() abi.ABI {
	return mustParseABI("ERC1155", erc1155ABIJSON)
}

func mustParseABI(name, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic("failed to parse " + name + " ABI: " + err.Error())
	}
	return parsed
}
