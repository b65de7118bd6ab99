package referral

import "errors"

var (
	ErrInvalidCode    = errors.New("invalid referral code")
	ErrRecordNotFound = errors.New("referral record not found")
	ErrNotPending     = errors.New("referral record is not pending")
	ErrDuplicatePair  = errors.New("referral already registered for this pair")
	ErrInternal       = errors.New("referral internal error")
)
