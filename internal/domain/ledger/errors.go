package ledger

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrInvalidEntry    = errors.New("invalid ledger entry")
	ErrInternal        = errors.New("ledger internal error")
)
