package domain

import "errors"

var (
	ErrGiftNotFound        = errors.New("gift_not_found")
	ErrInvalidParticipants = errors.New("invalid_participants")
	ErrInvalidGift         = errors.New("invalid_gift")
)
