package pricing

import "errors"

var (
	ErrTierNotFound    = errors.New("pricing tier not found")
	ErrInvalidTier     = errors.New("invalid pricing tier")
	ErrInvalidDiscount = errors.New("discount must be between 0 and 99 percent")
	ErrInternal        = errors.New("pricing internal error")
)
