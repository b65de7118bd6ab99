package usage

import "errors"

var (
	ErrInvalidRange     = errors.New("session ended before it started")
	ErrAccountNotFound  = errors.New("account not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInternal         = errors.New("usage internal error")
)
