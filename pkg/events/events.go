// Package events publishes domain events describing the payment and
// execution lifecycle. Publishing is best effort: a failed publish is logged
// and never changes the outcome of the request that produced the event.
package events

import (
	"context"
	"time"

	"robopay/pkg/money"
)

const (
	TypeSessionCreated     = "payment.session_created"
	TypeSessionPaid        = "payment.session_paid"
	TypeExecutionCompleted = "robot.execution_completed"

	SchemaVersion = "1"
)

// Event is keyed by robot id so that events for one robot keep their order.
type Event struct {
	Type          string
	Key           string
	CorrelationID string
	Data          any
}

type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

type SessionCreated struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	RobotID   string       `json:"robot_id"`
	Amount    money.Amount `json:"amount"`
	Currency  string       `json:"currency"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type SessionPaid struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	RobotID     string    `json:"robot_id"`
	TxSignature string    `json:"tx_signature"`
	PaidAt      time.Time `json:"paid_at"`
	LockSeconds int64     `json:"lock_seconds"`
}

type ExecutionCompleted struct {
	ExecutionID  string  `json:"execution_id"`
	RobotID      string  `json:"robot_id"`
	UserID       string  `json:"user_id"`
	SessionID    string  `json:"session_id,omitempty"`
	Status       string  `json:"status"`
	ResponseTime float64 `json:"response_time"`
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

func (Nop) Close() error { return nil }
