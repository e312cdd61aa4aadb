package errors

import "errors"

var (
	ErrNotFound = errors.New("payment session not found")

	ErrInvalidID = errors.New("invalid payment session ID")
)
