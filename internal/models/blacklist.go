package models

import "time"

// HaltOverride is an operator-entered manual halt on one underlying, checked
// by the Strategy Core alongside the automatic circuit breakers.
type HaltOverride struct {
	ID         int       `json:"id" db:"id"`
	Underlying string    `json:"underlying" db:"underlying"`
	Reason     string    `json:"reason" db:"reason"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
