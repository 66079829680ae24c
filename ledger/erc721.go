package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kaifufi/nftspace-settlement-go/access"
	"github.com/kaifufi/nftspace-settlement-go/chain"
)

// Revert reasons raised by ERC721Collection
const (
	ReasonNotAdmin          = "Account has no admin role"
	ReasonIncorrectOwner    = "ERC721: transfer from incorrect owner"
	ReasonTransferToZero    = "ERC721: transfer to the zero address"
	ReasonMintToZero        = "ERC721: mint to the zero address"
	ReasonApproveNotOwner   = "ERC721: approve caller is not token owner or approved for all"
	ReasonApproveToOwner    = "ERC721: approval to current owner"
	ReasonLazyMintSigner    = "signer mismatch"
	ReasonLazyMintNotAdmin  = "Signer not allowed to lazy mint"
	ReasonMintSigCancelled  = "Signature is cancelled"
	ReasonCancelNotSigner   = "Only the signer can cancell this signature"
	ReasonCancelledTwice    = "Signature is already cancelled"
	ReasonNotRentingRole    = "Caller is not the renting protocol"
	ReasonOriginalOwner     = "Original owner mismatch"
	ReasonTransferWhileRent = "NFT is currently rented by a user."
)

// Rental is the active rent session of one token.
type Rental struct {
	OriginalOwner          common.Address
	TemporaryOwner         common.Address
	ReturnTimestamp        uint64
	PrematureReturnAllowed bool
}

// ERC721Collection is a non-fungible collection with lazy minting and a
// rental state machine driven by the renting operator role.
type ERC721Collection struct {
	world     *World
	address   common.Address
	name      string
	roles     *access.Roles
	owners    map[common.Hash]common.Address
	approvals map[common.Hash]common.Address
	operators map[allowanceKey]bool
	rentals   map[common.Hash]Rental
	cancelled map[common.Hash]bool
}

// DeployERC721 deploys a collection administered by admin. A non-zero
// rentingProtocol is granted the renting operator role.
func DeployERC721(w *World, name string, admin, rentingProtocol common.Address) *ERC721Collection {
	c := &ERC721Collection{
		world:     w,
		address:   w.NewAddress(),
		name:      name,
		roles:     access.New(admin),
		owners:    make(map[common.Hash]common.Address),
		approvals: make(map[common.Hash]common.Address),
		operators: make(map[allowanceKey]bool),
		rentals:   make(map[common.Hash]Rental),
		cancelled: make(map[common.Hash]bool),
	}
	if rentingProtocol != (common.Address{}) {
		_ = c.roles.GrantRole(admin, access.RentingOperatorRole, rentingProtocol)
	}
	w.Register(c.address, c)
	return c
}

func (c *ERC721Collection) Address() common.Address { return c.address }
func (c *ERC721Collection) Name() string            { return c.name }
func (c *ERC721Collection) Roles() *access.Roles    { return c.roles }

// Domain is the EIP712 domain lazy-mint vouchers for this collection are signed under.
func (c *ERC721Collection) Domain() *chain.EIP712Domain {
	return chain.NewCollectionDomain(c.world.ChainID(), c.address)
}

// SupportsInterface implements ERC165.
func (c *ERC721Collection) SupportsInterface(id [4]byte) bool {
	return id == chain.InterfaceIDERC721 || id == chain.InterfaceIDERC165
}

// Exists reports whether tokenID has been minted.
func (c *ERC721Collection) Exists(tokenID *big.Int) bool {
	if !validTokenID(tokenID) {
		return false
	}
	_, ok := c.owners[tokenKey(tokenID)]
	return ok
}

// OwnerOf returns the owner of tokenID.
func (c *ERC721Collection) OwnerOf(tokenID *big.Int) (common.Address, error) {
	if !validTokenID(tokenID) {
		return common.Address{}, chain.ErrNonexistentToken
	}
	owner, ok := c.owners[tokenKey(tokenID)]
	if !ok {
		return common.Address{}, chain.ErrNonexistentToken
	}
	return owner, nil
}

// BalanceOf returns how many tokens owner holds.
func (c *ERC721Collection) BalanceOf(owner common.Address) *big.Int {
	n := int64(0)
	for _, o := range c.owners {
		if o == owner {
			n++
		}
	}
	return big.NewInt(n)
}

// Approve lets to transfer tokenID.
func (c *ERC721Collection) Approve(caller, to common.Address, tokenID *big.Int) error {
	owner, err := c.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if to == owner {
		return chain.ErrTransferNotAuthorized.WithReason(ReasonApproveToOwner)
	}
	if caller != owner && !c.IsApprovedForAll(owner, caller) {
		return chain.ErrTransferNotAuthorized.WithReason(ReasonApproveNotOwner)
	}
	set(c.world, c.approvals, tokenKey(tokenID), to)
	return nil
}

// GetApproved returns the single-token approval of tokenID.
func (c *ERC721Collection) GetApproved(tokenID *big.Int) common.Address {
	return c.approvals[tokenKey(tokenID)]
}

// SetApprovalForAll lets operator manage every token of owner.
func (c *ERC721Collection) SetApprovalForAll(owner, operator common.Address, approved bool) {
	set(c.world, c.operators, allowanceKey{owner, operator}, approved)
}

// IsApprovedForAll reports whether operator manages every token of owner.
func (c *ERC721Collection) IsApprovedForAll(owner, operator common.Address) bool {
	return c.operators[allowanceKey{owner, operator}]
}

// TransferFrom moves tokenID from from to to on behalf of caller. Rented
// tokens cannot leave through this path.
func (c *ERC721Collection) TransferFrom(caller, from, to common.Address, tokenID *big.Int) error {
	owner, err := c.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if caller != owner && c.GetApproved(tokenID) != caller && !c.IsApprovedForAll(owner, caller) {
		return chain.ErrTransferNotAuthorized
	}
	if owner != from {
		return chain.ErrNotOwner.WithReason(ReasonIncorrectOwner)
	}
	if to == (common.Address{}) {
		return chain.ErrZeroAddress.WithReason(ReasonTransferToZero)
	}
	if _, rented := c.rentals[tokenKey(tokenID)]; rented {
		return chain.ErrTokenRented.WithReason(ReasonTransferWhileRent)
	}
	c.move(from, to, tokenID)
	return nil
}

// SafeTransferFrom is TransferFrom; receivers in this world accept every token.
func (c *ERC721Collection) SafeTransferFrom(caller, from, to common.Address, tokenID *big.Int) error {
	return c.TransferFrom(caller, from, to, tokenID)
}

// Mint creates tokenID for to. caller must be a collection admin.
func (c *ERC721Collection) Mint(caller, to common.Address, tokenID *big.Int) error {
	if err := c.roles.Require(access.DefaultAdminRole, caller, ReasonNotAdmin); err != nil {
		return err
	}
	return c.mint(to, tokenID)
}

func (c *ERC721Collection) mint(to common.Address, tokenID *big.Int) error {
	if to == (common.Address{}) {
		return chain.ErrZeroAddress.WithReason(ReasonMintToZero)
	}
	if !validTokenID(tokenID) {
		return chain.ErrValueOutOfRange.WithReason("ERC721: token id is out of the uint256 range")
	}
	if c.Exists(tokenID) {
		return chain.ErrTokenAlreadyMinted
	}
	set(c.world, c.owners, tokenKey(tokenID), to)
	return nil
}

// Burn destroys tokenID on behalf of caller, who must own it or be approved
// to transfer it. Rented tokens cannot be burned.
func (c *ERC721Collection) Burn(caller common.Address, tokenID *big.Int) error {
	owner, err := c.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if caller != owner && c.GetApproved(tokenID) != caller && !c.IsApprovedForAll(owner, caller) {
		return chain.ErrTransferNotAuthorized
	}
	if c.IsRented(tokenID) {
		return chain.ErrTokenRented.WithReason(ReasonTransferWhileRent)
	}
	del(c.world, c.approvals, tokenKey(tokenID))
	del(c.world, c.owners, tokenKey(tokenID))
	return nil
}

func (c *ERC721Collection) move(from, to common.Address, tokenID *big.Int) {
	del(c.world, c.approvals, tokenKey(tokenID))
	set(c.world, c.owners, tokenKey(tokenID), to)
}

// MintWithSignature mints a lazy-mint voucher to its signer. The signer
// must be a collection admin and the voucher can be redeemed once.
func (c *ERC721Collection) MintWithSignature(mint *chain.Signed[*chain.SignedMint]) error {
	if err := chain.Verify(c.Domain(), mint, ReasonLazyMintSigner); err != nil {
		return err
	}
	if !c.roles.HasRole(access.DefaultAdminRole, mint.Order.From) {
		return chain.ErrUnauthorized.WithReason(ReasonLazyMintNotAdmin)
	}
	sigHash := mint.SigHash()
	if c.cancelled[sigHash] {
		return chain.ErrSignatureCancelled.WithReason(ReasonMintSigCancelled)
	}
	if err := c.mint(mint.Order.From, mint.Order.TokenID); err != nil {
		return err
	}
	set(c.world, c.cancelled, sigHash, true)
	return nil
}

// MintWithSignatureAndSafeTransferFrom redeems a voucher and moves the new
// token from from to to on behalf of caller.
func (c *ERC721Collection) MintWithSignatureAndSafeTransferFrom(caller, from, to common.Address, mint *chain.Signed[*chain.SignedMint]) error {
	if err := c.MintWithSignature(mint); err != nil {
		return err
	}
	return c.SafeTransferFrom(caller, from, to, mint.Order.TokenID)
}

// CancelSignature voids a lazy-mint voucher. Only its signer may cancel it.
func (c *ERC721Collection) CancelSignature(caller common.Address, mint *chain.Signed[*chain.SignedMint]) error {
	if caller != mint.Order.From {
		return chain.ErrUnauthorized.WithReason(ReasonCancelNotSigner)
	}
	if err := chain.Verify(c.Domain(), mint, ReasonLazyMintSigner); err != nil {
		return err
	}
	sigHash := mint.SigHash()
	if c.cancelled[sigHash] {
		return chain.ErrAlreadyCancelled.WithReason(ReasonCancelledTwice)
	}
	set(c.world, c.cancelled, sigHash, true)
	return nil
}

// IsSignatureCancelled reports whether a lazy-mint voucher was used or cancelled.
func (c *ERC721Collection) IsSignatureCancelled(sigHash common.Hash) bool {
	return c.cancelled[sigHash]
}

// RentNFT moves tokenID from its owner to temporaryOwner until returnTimestamp.
func (c *ERC721Collection) RentNFT(caller, originalOwner, temporaryOwner common.Address, tokenID *big.Int, returnTimestamp uint64, prematureReturnAllowed bool) error {
	if !c.roles.HasRole(access.RentingOperatorRole, caller) {
		return chain.ErrNotRentingOperator.WithReason(ReasonNotRentingRole)
	}
	key := tokenKey(tokenID)
	if _, rented := c.rentals[key]; rented {
		return chain.ErrAlreadyRented
	}
	owner, err := c.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if owner != originalOwner {
		return chain.ErrOriginalOwnerMismatch.WithReason(ReasonOriginalOwner)
	}
	if returnTimestamp <= c.world.Now() {
		return chain.ErrReturnTimeInPast
	}

	c.move(originalOwner, temporaryOwner, tokenID)
	set(c.world, c.rentals, key, Rental{
		OriginalOwner:          originalOwner,
		TemporaryOwner:         temporaryOwner,
		ReturnTimestamp:        returnTimestamp,
		PrematureReturnAllowed: prematureReturnAllowed,
	})
	return nil
}

// ReturnNFT ends the rent session of tokenID and gives the token back to its
// original owner. Before the return time only the temporary owner may
// return it, and only when the listing allowed premature return.
func (c *ERC721Collection) ReturnNFT(caller, requester common.Address, tokenID *big.Int) error {
	if !c.roles.HasRole(access.RentingOperatorRole, caller) {
		return chain.ErrNotRentingOperator.WithReason(ReasonNotRentingRole)
	}
	key := tokenKey(tokenID)
	rental, ok := c.rentals[key]
	if !ok {
		return chain.ErrNoActiveRent
	}
	expired := c.world.Now() > rental.ReturnTimestamp
	early := rental.PrematureReturnAllowed && requester == rental.TemporaryOwner
	if !expired && !early {
		return chain.ErrRentNotExpired
	}

	c.move(rental.TemporaryOwner, rental.OriginalOwner, tokenID)
	del(c.world, c.rentals, key)
	return nil
}

// IsRented reports whether tokenID is in an active rent session.
func (c *ERC721Collection) IsRented(tokenID *big.Int) bool {
	_, ok := c.rentals[tokenKey(tokenID)]
	return ok
}

// RentalOf returns the active rent session of tokenID.
func (c *ERC721Collection) RentalOf(tokenID *big.Int) (Rental, bool) {
	r, ok := c.rentals[tokenKey(tokenID)]
	return r, ok
}

// validTokenID reports whether id fits a uint256. Keys are 32 bytes wide, so
// wider or negative ids would share a key with an in-range one.
func validTokenID(id *big.Int) bool {
	return id != nil && id.Sign() >= 0 && id.BitLen() <= 256
}

func tokenKey(id *big.Int) common.Hash {
	if id == nil {
		return common.Hash{}
	}
	return common.BigToHash(id)
}
