package errors

import "errors"

var (
	ErrNotSessionOwner = errors.New("session belongs to another user")

	ErrSessionRobotMismatch = errors.New("session does not match robot")

	ErrSessionNotPending = errors.New("session is no longer pending")
)
