package errors

import "errors"

var (
	ErrLocked = errors.New("robot is locked by another user")

	ErrInvalidDuration = errors.New("lock duration must be positive")
)
