package wallet

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrAmountTooSmall  = errors.New("deposit too small to buy a single minute")
	ErrZeroAdjustment  = errors.New("adjustment delta must be non-zero")
)
