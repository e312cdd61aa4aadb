package model

import "time"

const (
	ExecutionStatusSuccess = "success"
	ExecutionStatusError   = "error"
)

// ExecutionRecord is append-only.
type ExecutionRecord struct {
	ID           string    `json:"id" bson:"_id"`
	RobotID      string    `json:"robot_id" bson:"robot_id"`
	UserID       string    `json:"user_id" bson:"user_id"`
	SessionID    string    `json:"session_id,omitempty" bson:"session_id,omitempty"`
	Service      string    `json:"service,omitempty" bson:"service,omitempty"`
	Status       string    `json:"status" bson:"status"`
	ResponseTime float64   `json:"response_time" bson:"response_time"`
	ErrorMessage string    `json:"error_message,omitempty" bson:"error_message,omitempty"`
	ExecutedAt   time.Time `json:"executed_at" bson:"executed_at"`
}
