package model

import (
	"time"

	"robopay/pkg/money"
)

// Settlement binds an on-chain transaction signature to the single session it paid for.
type Settlement struct {
	Signature  string       `json:"tx_signature" bson:"_id"`
	SessionID  string       `json:"session_id" bson:"session_id"`
	UserID     string       `json:"user_id" bson:"user_id"`
	RobotID    string       `json:"robot_id" bson:"robot_id"`
	Amount     money.Amount `json:"amount" bson:"amount_micros"`
	RecordedAt time.Time    `json:"recorded_at" bson:"recorded_at"`
}
