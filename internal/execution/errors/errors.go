package errors

import "errors"

var (
	ErrRobotNotFound = errors.New("robot not found")

	ErrConcurrentUpdate = errors.New("robot metrics changed concurrently")
)
