package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidPlan          = errors.New("invalid plan")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrUnknownModel         = errors.New("unknown model")
	ErrProviderFailure      = errors.New("provider failure")
)
