package models

import "time"

// Direction is the outcome of the once-per-day Strategy Core decision.
type Direction string

const (
	DirectionCE      Direction = "CE"
	DirectionPE      Direction = "PE"
	DirectionNoTrade Direction = "NO_TRADE"
)

// DailyState is reset at the first tick after market open and finalized at
// EOD. It is mutated only by the single-writer event loop.
type DailyState struct {
	Date              time.Time
	Direction         Direction
	ADX               float64
	PlusDI            float64
	MinusDI           float64
	EntriesToday      int
	RealizedPnlToday  float64
	ConsecutiveLosses int
	TradingHalted     bool
	HaltReason        string

	// HourlyAligned tracks whether the most recent hourly BarReady found the
	// hourly indicators aligned with Direction; used to detect the
	// aligned->misaligned transition that raises an AlignmentLost exit.
	HourlyAligned bool
}

// Reset reinitializes the state for a new trading day.
func (d *DailyState) Reset(date time.Time) {
	*d = DailyState{Date: date, Direction: DirectionNoTrade}
}
