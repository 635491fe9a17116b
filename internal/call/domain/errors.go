package domain

import "errors"

var (
	ErrInvalidRate         = errors.New("invalid_rate")
	ErrInvalidParticipants = errors.New("invalid_participants")
	ErrCallNotFound        = errors.New("call_not_found")
	ErrInvalidState        = errors.New("invalid_state")
)
