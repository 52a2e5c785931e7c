package settlement

import "errors"

var (
	ErrNotFound            = errors.New("transaction not found")
	ErrInvalidAmount       = errors.New("amount outside allowed bounds")
	ErrDuplicatePending    = errors.New("pending topup with identical amount already exists")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOwner            = errors.New("transaction belongs to another account")
	ErrWrongKind           = errors.New("operation does not apply to this transaction kind")
)
