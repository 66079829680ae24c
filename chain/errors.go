package chain

import "errors"

// Category groups settlement failures by the kind of condition that was not met.
type Category int

const (
	CategoryAuthorization Category = iota + 1
	CategoryState
	CategoryPrecondition
	CategoryFunds
)

func (c Category) String() string {
	switch c {
	case CategoryAuthorization:
		return "authorization"
	case CategoryState:
		return "state"
	case CategoryPrecondition:
		return "precondition"
	case CategoryFunds:
		return "funds"
	default:
		return "unknown"
	}
}

// Code identifies a settlement failure independently of its reason string.
type Code string

// Error is a revert raised by the settlement core. Reason carries the exact
// message a caller sees; errors.Is compares codes only so call sites can
// attach their own reason without breaking matching.
type Error struct {
	Code     Code
	Category Category
	Reason   string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return string(e.Code)
}

// Is reports whether target is a *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithReason returns a copy of e carrying reason.
func (e *Error) WithReason(reason string) *Error {
	return &Error{Code: e.Code, Category: e.Category, Reason: reason}
}

func newError(code Code, category Category, reason string) *Error {
	return &Error{Code: code, Category: category, Reason: reason}
}

// Authorization errors
var (
	ErrUnauthorized       = newError("Unauthorized", CategoryAuthorization, "caller is not authorized")
	ErrSignerMismatch     = newError("SignerMismatch", CategoryAuthorization, "signer mismatch")
	ErrNotRentingOperator = newError("NotRentingOperator", CategoryAuthorization, "Caller is not the renting protocol")
)

// State errors
var (
	ErrAlreadyCancelled   = newError("AlreadyCancelled", CategoryState, "Signature is already cancelled")
	ErrSignatureCancelled = newError("SignatureCancelled", CategoryState, "Signature is cancelled")
	ErrOverfill           = newError("Overfill", CategoryState, "fill exceeds the signed amount")
	ErrAlreadyRented      = newError("AlreadyRented", CategoryState, "NFT is currnetly being rented")
	ErrNoActiveRent       = newError("NoActiveRent", CategoryState, "No active rent for this NFT")
	ErrRentNotExpired     = newError("RentNotExpired", CategoryState, "Rent time has not expired yet")
	ErrAuctionNotExpired  = newError("AuctionNotExpired", CategoryState, "Auction has not expired yet")
	ErrSignatureExpired   = newError("SignatureExpired", CategoryState, "Signature is expired")
	ErrReturnTimeInPast   = newError("ReturnTimeInPast", CategoryState, "return time cannot be set in the past")
	ErrPaused             = newError("Paused", CategoryState, "Pausable: paused")
	ErrTokenRented        = newError("TokenCurrentlyRented", CategoryState, "NFT is currently rented by a user.")
)

// Precondition errors
var (
	ErrInvalidTokenContract  = newError("InvalidTokenContract", CategoryPrecondition, "wrong NFT Collection address")
	ErrTokenNotApproved      = newError("TokenNotApproved", CategoryPrecondition, "ERC20 token is not approved as a settlement token")
	ErrNotApproved           = newError("NotApproved", CategoryPrecondition, "marketplace is not approved as an operator")
	ErrAlreadyOwner          = newError("AlreadyOwner", CategoryPrecondition, "user is already the owner of this NFT")
	ErrSellerNoLongerOwner   = newError("SellerNoLongerOwner", CategoryPrecondition, "seller is no longer the owner of this NFT")
	ErrNotOwner              = newError("NotOwner", CategoryPrecondition, "User is not the owner of this NFT")
	ErrOriginalOwnerMismatch = newError("OriginalOwnerMismatch", CategoryPrecondition, "Original owner mismatch")
	ErrOrderMismatch         = newError("OrderMismatch", CategoryPrecondition, "orders do not reference the same asset")
	ErrBidTooLow             = newError("BidTooLow", CategoryPrecondition, "bid is below the auction price")
	ErrInvalidAmount         = newError("InvalidAmount", CategoryPrecondition, "Amount must be greater than 0")
	ErrInvalidDuration       = newError("InvalidDuration", CategoryPrecondition, "rental period is out of the listing bounds")
	ErrInvalidConfig         = newError("InvalidConfig", CategoryPrecondition, "invalid configuration value")
	ErrInsufficientSupply    = newError("InsufficientSupply", CategoryPrecondition,
		"Something went wrong: make sure the signatures have enough available tokens and the marketplace is approved to manage them.")
	ErrNonexistentToken       = newError("NonexistentToken", CategoryPrecondition, "ERC721: invalid token ID")
	ErrTransferNotAuthorized  = newError("TransferNotAuthorized", CategoryPrecondition, "ERC721: caller is not token owner nor approved")
	ErrTokenAlreadyMinted     = newError("TokenAlreadyMinted", CategoryPrecondition, "ERC721: token already minted")
	ErrInvalidSignatureFormat = newError("InvalidSignature", CategoryAuthorization, "ECDSA: invalid signature")
	ErrZeroAddress            = newError("ZeroAddress", CategoryPrecondition, "address can't be 0")
	ErrMissingOrder           = newError("MissingOrder", CategoryPrecondition, "signed order is missing")
	ErrValueOutOfRange        = newError("ValueOutOfRange", CategoryPrecondition, "value is out of the uint256 range")
	ErrLengthMismatch         = newError("LengthMismatch", CategoryPrecondition, "The arrays provided have different sizes")
)

// Funds errors
var (
	ErrInsufficientFunds     = newError("InsufficientFunds", CategoryFunds, "Insufficient funds")
	ErrInsufficientAllowance = newError("InsufficientAllowance", CategoryFunds, "ERC20: insufficient allowance")
	ErrInsufficientBalance   = newError("InsufficientBalance", CategoryFunds, "ERC20: transfer amount exceeds balance")
)

// CategoryOf returns the category of a settlement error, or 0 when err is
// not one.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return 0
}
