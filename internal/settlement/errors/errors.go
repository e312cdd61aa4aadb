package errors

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrInvalidSignature = errors.New("invalid transaction signature")

	ErrSignatureUsed = errors.New("transaction signature already settled another session")
)
