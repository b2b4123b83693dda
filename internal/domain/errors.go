package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrRecipientNotFound  = errors.New("recipient account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidAmount      = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrSelfTransfer       = errors.New("cannot transfer to same account")
	ErrNotAccountOwner    = errors.New("caller does not own the source account")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAccountHalted      = errors.New("account halted pending review")
	ErrAccountClosed      = errors.New("account closed")
	ErrAccountNotEmpty    = errors.New("account balance must be zero")
	ErrBalanceImmutable   = errors.New("balance cannot be set directly")
	ErrTransferBusy       = errors.New("transfer contention, retry later")
	ErrVersionConflict    = errors.New("optimistic lock conflict")
	ErrInvalidRequest     = errors.New("invalid request")

	// ErrInvariantViolation means a committed ledger no longer sums to an
	// account's balance. It is an internal fault, never a validation error.
	ErrInvariantViolation = errors.New("ledger reconciliation mismatch")
)
