package domain

import "errors"

var (
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidKind         = errors.New("invalid_kind")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrEntryNotFound       = errors.New("entry_not_found")
	ErrInsufficientFunds   = errors.New("insufficient_funds")
	ErrAccountBlocked      = errors.New("account_blocked")
	ErrEntryReversed       = errors.New("entry_already_reversed")
	ErrUnbalancedPair      = errors.New("unbalanced_pair")
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
)
