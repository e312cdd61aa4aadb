package errors

import "errors"

var (
	ErrNotFound = errors.New("robot not found")

	ErrInvalidID = errors.New("invalid robot ID")
)
