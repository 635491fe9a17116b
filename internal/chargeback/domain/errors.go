package domain

import "errors"

var (
	ErrInvalidReason       = errors.New("invalid_reason")
	ErrInvalidDecision     = errors.New("invalid_decision")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrChargebackNotFound  = errors.New("chargeback_not_found")
	ErrDuplicateChargeback = errors.New("duplicate_chargeback")
	ErrInvalidState        = errors.New("invalid_state")
)
