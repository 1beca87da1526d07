package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnknownMarket         = errors.New("unknown market")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidPrice          = errors.New("price must be between 1 and 99 cents")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrNotOracle             = errors.New("caller is not the market oracle")
	ErrNotAuthorized         = errors.New("caller is not authorized")
	ErrAlreadySettled        = errors.New("market already settled")
	ErrNotSettled            = errors.New("market not settled")
	ErrAlreadyTerminal       = errors.New("order already cancelled or fully filled")
	ErrNothingToClaim        = errors.New("nothing to claim")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrWindowClosed          = errors.New("window closed")
	ErrWindowOpen            = errors.New("window still open")
	ErrBadReveal             = errors.New("reveal does not match commitment")
	ErrAlreadyCommitted      = errors.New("already committed")
	ErrBadState              = errors.New("operation not valid in current state")
	ErrRateLimited           = errors.New("rate limited")
	ErrLockHeld              = errors.New("lock already held")
)
