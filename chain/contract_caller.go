package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractCaller performs read-only calls against deployed token contracts.
// It lets a participant check an order's preconditions before submitting it.
type ContractCaller struct {
	backend    ethereum.ContractCaller
	closer     func()
	erc20ABI   abi.ABI
	erc721ABI  abi.ABI
	erc1155ABI abi.ABI

	decimalsMu         sync.Mutex
	tokenDecimalsCache map[common.Address]uint8
}

// NewContractCaller wraps any contract call backend, such as an *ethclient.Client.
func NewContractCaller(backend ethereum.ContractCaller) *ContractCaller {
	return &ContractCaller{
		backend:            backend,
		erc20ABI:           GetERC20ABI(),
		erc721ABI:          GetERC721ABI(),
		erc1155ABI:         GetERC1155ABI(),
		tokenDecimalsCache: make(map[common.Address]uint8),
	}
}

// DialContractCaller connects to an RPC endpoint.
func DialContractCaller(ctx context.Context, rpcURL string) (*ContractCaller, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	cc := NewContractCaller(client)
	cc.closer = client.Close
	return cc, nil
}

// OwnerOf returns the owner of an ERC721 token.
func (cc *ContractCaller) OwnerOf(ctx context.Context, token common.Address, tokenID *big.Int) (common.Address, error) {
	var owner common.Address
	if err := cc.call(ctx, cc.erc721ABI, token, "ownerOf", &owner, tokenID); err != nil {
		return common.Address{}, err
	}
	return owner, nil
}

// IsApprovedForAll reports whether operator manages all of owner's tokens.
// The selector is identical for ERC721 and ERC1155.
func (cc *ContractCaller) IsApprovedForAll(ctx context.Context, token, owner, operator common.Address) (bool, error) {
	var approved bool
	if err := cc.call(ctx, cc.erc721ABI, token, "isApprovedForAll", &approved, owner, operator); err != nil {
		return false, err
	}
	return approved, nil
}

// SupportsInterface performs an ERC165 probe.
func (cc *ContractCaller) SupportsInterface(ctx context.Context, token common.Address, interfaceID [4]byte) (bool, error) {
	var supported bool
	if err := cc.call(ctx, cc.erc721ABI, token, "supportsInterface", &supported, interfaceID); err != nil {
		return false, err
	}
	return supported, nil
}

// BalanceOf1155 returns account's balance of an ERC1155 token id.
func (cc *ContractCaller) BalanceOf1155(ctx context.Context, token, account common.Address, id *big.Int) (*big.Int, error) {
	var balance *big.Int
	if err := cc.call(ctx, cc.erc1155ABI, token, "balanceOf", &balance, account, id); err != nil {
		return nil, err
	}
	return balance, nil
}

// Allowance returns the ERC20 allowance for owner to spender
func (cc *ContractCaller) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var allowance *big.Int
	if err := cc.call(ctx, cc.erc20ABI, token, "allowance", &allowance, owner, spender); err != nil {
		return nil, err
	}
	return allowance, nil
}

// BalanceOf returns the ERC20 balance for an account
func (cc *ContractCaller) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := cc.call(ctx, cc.erc20ABI, token, "balanceOf", &balance, account); err != nil {
		return nil, err
	}
	return balance, nil
}

// Decimals gets token decimals with caching
func (cc *ContractCaller) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	cc.decimalsMu.Lock()
	if decimals, ok := cc.tokenDecimalsCache[token]; ok {
		cc.decimalsMu.Unlock()
		return decimals, nil
	}
	cc.decimalsMu.Unlock()

	var decimals uint8
	if err := cc.call(ctx, cc.erc20ABI, token, "decimals", &decimals); err != nil {
		return 0, err
	}

	cc.decimalsMu.Lock()
	cc.tokenDecimalsCache[token] = decimals
	cc.decimalsMu.Unlock()
	return decimals, nil
}

func (cc *ContractCaller) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, out interface{}, args ...interface{}) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	result, err := cc.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}

	if err := contractABI.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return nil
}

// Close closes the Ethereum client connection
func (cc *ContractCaller) Close() {
	if cc.closer != nil {
		cc.closer()
	}
}
