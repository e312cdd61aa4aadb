package model

import (
	"time"

	"robopay/pkg/money"
)

const (
	SessionStatusPending = "pending"
	SessionStatusPaid    = "paid"
	SessionStatusExpired = "expired"
)

type PaymentSession struct {
	ID          string         `json:"session_id"`
	UserID      string         `json:"user_id"`
	RobotID     string         `json:"robot_id"`
	Amount      money.Amount   `json:"amount"`
	Currency    string         `json:"currency"`
	Recipient   string         `json:"recipient"`
	Status      string         `json:"status"`
	TxSignature string         `json:"tx_signature,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	PaidAt      *time.Time     `json:"paid_at,omitempty"`
}

func (s *PaymentSession) IsPaid() bool {
	return s.Status == SessionStatusPaid
}

func (s *PaymentSession) IsExpired() bool {
	return s.Status == SessionStatusExpired
}

// NewSession carries the caller-supplied fields of a session to be created.
type NewSession struct {
	UserID    string
	RobotID   string
	Amount    money.Amount
	Currency  string
	Recipient string
	Payload   map[string]any
}
