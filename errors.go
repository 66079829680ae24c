package nftspace

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParam represents an invalid parameter error
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrNotConfigured is returned when a call needs an engine or chain
	// reader the client was created without
	ErrNotConfigured = errors.New("not configured")

	// ErrBalanceNotEnough represents insufficient balance error
	ErrBalanceNotEnough = errors.New("balance not enough")

	// ErrAllowanceNotEnough means the spender may not pull the payment
	ErrAllowanceNotEnough = errors.New("allowance not enough")

	// ErrNotOwner means the account does not own the token
	ErrNotOwner = errors.New("not the token owner")

	// ErrNotApproved means the operator may not move the account's tokens
	ErrNotApproved = errors.New("operator not approved")

	// ErrUnsupportedContract means the contract lacks the expected ERC165 interface
	ErrUnsupportedContract = errors.New("unsupported token contract")
)

// InvalidParamError represents an invalid parameter error with context
type InvalidParamError struct {
	Message string
}

func (e *InvalidParamError) Error() string {
	return e.Message
}

func (e *InvalidParamError) Unwrap() error {
	return ErrInvalidParam
}

// PreflightError reports which live-chain check an order failed
type PreflightError struct {
	Check string
	Err   error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight %s: %v", e.Check, e.Err)
}

func (e *PreflightError) Unwrap() error {
	return e.Err
}
