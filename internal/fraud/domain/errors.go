package domain

import "errors"

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidFlagType = errors.New("invalid_flag_type")
	ErrInvalidSeverity = errors.New("invalid_severity")
	ErrInvalidAction   = errors.New("invalid_review_action")
	ErrFlagNotFound    = errors.New("flag_not_found")
	ErrFlagReviewed    = errors.New("flag_already_reviewed")
)
