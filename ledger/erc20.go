package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/chain"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// ERC20Token is a fungible token with OpenZeppelin ERC20 semantics.
type ERC20Token struct {
	world      *World
	address    common.Address
	symbol     string
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
}

// DeployERC20 deploys a token into w.
func DeployERC20(w *World, symbol string, decimals uint8) *ERC20Token {
	t := &ERC20Token{
		world:      w,
		address:    w.NewAddress(),
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
	w.Register(t.address, t)
	return t
}

func (t *ERC20Token) Address() common.Address { return t.address }
func (t *ERC20Token) Symbol() string          { return t.symbol }
func (t *ERC20Token) Decimals() uint8         { return t.decimals }

// BalanceOf returns the token balance of account.
func (t *ERC20Token) BalanceOf(account common.Address) *big.Int {
	return amountOf(t.balances, account)
}

// Allowance returns how much spender may move on owner's behalf.
func (t *ERC20Token) Allowance(owner, spender common.Address) *big.Int {
	return amountOf(t.allowances, allowanceKey{owner, spender})
}

// Mint creates value tokens for to.
func (t *ERC20Token) Mint(to common.Address, value *big.Int) {
	set(t.world, t.balances, to, new(big.Int).Add(t.BalanceOf(to), value))
}

// Approve sets spender's allowance over owner's tokens.
func (t *ERC20Token) Approve(owner, spender common.Address, value *big.Int) {
	set(t.world, t.allowances, allowanceKey{owner, spender}, new(big.Int).Set(value))
}

// Transfer moves value from from to to.
func (t *ERC20Token) Transfer(from, to common.Address, value *big.Int) error {
	if value.Sign() < 0 {
		return chain.ErrValueOutOfRange.WithReason("ERC20: negative transfer amount")
	}
	balance := t.BalanceOf(from)
	if balance.Cmp(value) < 0 {
		return chain.ErrInsufficientBalance
	}
	set(t.world, t.balances, from, balance.Sub(balance, value))
	set(t.world, t.balances, to, new(big.Int).Add(t.BalanceOf(to), value))
	return nil
}

// TransferFrom moves value from from to to using spender's allowance.
// The allowance is checked before the balance.
func (t *ERC20Token) TransferFrom(spender, from, to common.Address, value *big.Int) error {
	if value.Sign() < 0 {
		return chain.ErrValueOutOfRange.WithReason("ERC20: negative transfer amount")
	}
	allowance := t.Allowance(from, spender)
	if allowance.Cmp(value) < 0 {
		return chain.ErrInsufficientAllowance
	}
	if err := t.Transfer(from, to, value); err != nil {
		return err
	}
	set(t.world, t.allowances, allowanceKey{from, spender}, allowance.Sub(allowance, value))
	return nil
}

func amountOf[K comparable](m map[K]*big.Int, k K) *big.Int {
	if v, ok := m[k]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
