package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/access"
	"github.com/kaifufi/nftspace-settlement-go/chain"
)

// Revert reasons raised by ERC1155Collection
const (
	Reason1155NotApproved  = "ERC1155: caller is not token owner or approved"
	Reason1155Insufficient = "ERC1155: insufficient balance for transfer"
	Reason1155ToZero       = "ERC1155: transfer to the zero address"
)

type balanceKey struct {
	account common.Address
	id      common.Hash
}

// ERC1155Collection is a multi-token collection.
type ERC1155Collection struct {
	world     *World
	address   common.Address
	roles     *access.Roles
	balances  map[balanceKey]*big.Int
	operators map[allowanceKey]bool
}

// DeployERC1155 deploys a collection administered by admin.
func DeployERC1155(w *World, admin common.Address) *ERC1155Collection {
	c := &ERC1155Collection{
		world:     w,
		address:   w.NewAddress(),
		roles:     access.New(admin),
		balances:  make(map[balanceKey]*big.Int),
		operators: make(map[allowanceKey]bool),
	}
	w.Register(c.address, c)
	return c
}

func (c *ERC1155Collection) Address() common.Address { return c.address }
func (c *ERC1155Collection) Roles() *access.Roles    { return c.roles }

// SupportsInterface implements ERC165.
func (c *ERC1155Collection) SupportsInterface(id [4]byte) bool {
	return id == chain.InterfaceIDERC1155 || id == chain.InterfaceIDERC165
}

// BalanceOf returns account's balance of token id.
func (c *ERC1155Collection) BalanceOf(account common.Address, id *big.Int) *big.Int {
	if !validTokenID(id) {
		return new(big.Int)
	}
	return amountOf(c.balances, balanceKey{account, tokenKey(id)})
}

// Mint creates amount units of id for to. caller must be a collection admin.
func (c *ERC1155Collection) Mint(caller, to common.Address, id, amount *big.Int) error {
	if err := c.roles.Require(access.DefaultAdminRole, caller, ReasonNotAdmin); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return chain.ErrZeroAddress.WithReason("ERC1155: mint to the zero address")
	}
	if !validTokenID(id) {
		return chain.ErrValueOutOfRange.WithReason("ERC1155: token id is out of the uint256 range")
	}
	key := balanceKey{to, tokenKey(id)}
	set(c.world, c.balances, key, new(big.Int).Add(c.BalanceOf(to, id), amount))
	return nil
}

// SetApprovalForAll lets operator manage every token of owner.
func (c *ERC1155Collection) SetApprovalForAll(owner, operator common.Address, approved bool) {
	set(c.world, c.operators, allowanceKey{owner, operator}, approved)
}

// IsApprovedForAll reports whether operator manages every token of owner.
func (c *ERC1155Collection) IsApprovedForAll(owner, operator common.Address) bool {
	return c.operators[allowanceKey{owner, operator}]
}

// SafeTransferFrom moves amount units of id from from to to on behalf of caller.
func (c *ERC1155Collection) SafeTransferFrom(caller, from, to common.Address, id, amount *big.Int) error {
	if caller != from && !c.IsApprovedForAll(from, caller) {
		return chain.ErrTransferNotAuthorized.WithReason(Reason1155NotApproved)
	}
	if to == (common.Address{}) {
		return chain.ErrZeroAddress.WithReason(Reason1155ToZero)
	}
	if amount.Sign() < 0 {
		return chain.ErrValueOutOfRange.WithReason("ERC1155: negative transfer amount")
	}
	balance := c.BalanceOf(from, id)
	if balance.Cmp(amount) < 0 {
		return chain.ErrInsufficientBalance.WithReason(Reason1155Insufficient)
	}
	set(c.world, c.balances, balanceKey{from, tokenKey(id)}, balance.Sub(balance, amount))
	set(c.world, c.balances, balanceKey{to, tokenKey(id)}, new(big.Int).Add(c.BalanceOf(to, id), amount))
	return nil
}
