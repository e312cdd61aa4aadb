package model

import "time"

// ResourceLock is an exclusive-use claim on a robot. It is never released
// explicitly: it disappears when its TTL elapses.
type ResourceLock struct {
	RobotID    string        `json:"robot_id"`
	Holder     string        `json:"holder"`
	AcquiredAt time.Time     `json:"acquired_at"`
	Remaining  time.Duration `json:"-"`
}
