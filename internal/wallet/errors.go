package wallet

import "errors"

// Wallet errors.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrRateLimitExceeded  = errors.New("amount exceeds available rate-limited balance")
	ErrNoRLCoin           = errors.New("no rate-limited coin")
	ErrUnsignableCoin     = errors.New("no key for coin")
	ErrOutOfOrderSync     = errors.New("block delta out of order")
	ErrSpendPending       = errors.New("rate-limited coin has a pending spend")
	ErrNotRateLimited     = errors.New("wallet is not rate-limited")
	ErrAlreadyInitialized = errors.New("rate-limited origin already set")
	ErrUnknownBundle      = errors.New("bundle has no reservations")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrUnknownCoin        = errors.New("coin not in wallet")
)
