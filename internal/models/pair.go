package models

import "time"

// UnderlyingWatch is the configuration for one traded underlying index
// (NIFTY, BANKNIFTY, FINNIFTY): its strike increment, subscription width,
// and accumulated daily stats.
type UnderlyingWatch struct {
	ID                      int       `json:"id" db:"id"`
	Underlying              string    `json:"underlying" db:"underlying"`
	StrikeIncrement         float64   `json:"strike_increment" db:"strike_increment"`
	StrikeSubscriptionCount int       `json:"strike_subscription_count" db:"strike_subscription_count"` // strikes either side of ATM to subscribe
	Status                  string    `json:"status" db:"status"`                                        // paused, active
	TradesCount             int       `json:"trades_count" db:"trades_count"`
	TotalPnl                float64   `json:"total_pnl" db:"total_pnl"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}

// Watch statuses.
const (
	WatchStatusPaused = "paused"
	WatchStatusActive = "active"
)
