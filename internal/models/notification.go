package models

import "time"

// Notification is a user-facing event raised by the engine.
type Notification struct {
	ID         int                    `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Type       string                 `json:"type" db:"type"` // ENTRY, EXIT, STOP_LOSS, HALT, ERROR, MARGIN, ORDER_TIMEOUT
	Severity   string                 `json:"severity" db:"severity"`
	PositionID *string                `json:"position_id,omitempty" db:"position_id"`
	Message    string                 `json:"message" db:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty" db:"meta"` // JSON blob in the DB
}

// Notification types.
const (
	NotificationTypeEntry       = "ENTRY"
	NotificationTypeExit        = "EXIT"
	NotificationTypeStopLoss    = "STOP_LOSS"
	NotificationTypeHalt        = "HALT"         // trading halted for the day
	NotificationTypeError       = "ERROR"        // broker/API error
	NotificationTypeMargin      = "MARGIN"       // insufficient margin
	NotificationTypeOrderTimeout = "ORDER_TIMEOUT" // ladder exhausted without a fill
)

// Severity levels.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
