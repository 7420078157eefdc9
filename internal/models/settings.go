package models

import "time"

// EngineSettings holds globally adjustable runtime settings, persisted and
// editable from the control surface without a restart.
type EngineSettings struct {
	ID                  int                     `json:"id" db:"id"`
	MaxConcurrentTrades *int                    `json:"max_concurrent_trades" db:"max_concurrent_trades"` // nil = no override, fall back to risk config
	NotificationPrefs   NotificationPreferences `json:"notification_prefs" db:"notification_prefs"`
	UpdatedAt           time.Time               `json:"updated_at" db:"updated_at"`
}

// NotificationPreferences toggles which notification types are delivered.
type NotificationPreferences struct {
	Entry        bool `json:"entry"`
	Exit         bool `json:"exit"`
	StopLoss     bool `json:"stop_loss"`
	Halt         bool `json:"halt"`
	APIError     bool `json:"api_error"`
	Margin       bool `json:"margin"`
	OrderTimeout bool `json:"order_timeout"`
}
