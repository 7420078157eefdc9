package models

import "time"

// Stats is the aggregated performance summary served on the status surface.
type Stats struct {
	TotalTrades        int                `json:"total_trades"`
	TotalPnl           float64            `json:"total_pnl"`
	TodayTrades        int                `json:"today_trades"`
	TodayPnl           float64            `json:"today_pnl"`
	WeekTrades         int                `json:"week_trades"`
	WeekPnl            float64            `json:"week_pnl"`
	MonthTrades        int                `json:"month_trades"`
	MonthPnl           float64            `json:"month_pnl"`
	StopLossStats      StopLossStats      `json:"stop_loss_stats"`
	OrderTimeoutStats  OrderTimeoutStats  `json:"order_timeout_stats"`
	TopUnderlyingByTrades []UnderlyingStat `json:"top_underlying_by_trades"`
	TopUnderlyingByProfit []UnderlyingStat `json:"top_underlying_by_profit"`
	TopUnderlyingByLoss   []UnderlyingStat `json:"top_underlying_by_loss"`
}

// StopLossStats counts stop-loss exits over rolling windows.
type StopLossStats struct {
	Today  int             `json:"today"`
	Week   int             `json:"week"`
	Month  int             `json:"month"`
	Events []StopLossEvent `json:"events"`
}

// StopLossEvent is one stop-loss exit.
type StopLossEvent struct {
	Symbol    string    `json:"symbol"`
	Underlying string   `json:"underlying"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderTimeoutStats counts ladder exhaustion events: the
// retry ladder ran out of rungs before a fill or cancel confirmed.
type OrderTimeoutStats struct {
	Today  int                  `json:"today"`
	Week   int                  `json:"week"`
	Month  int                  `json:"month"`
	Events []OrderTimeoutEvent  `json:"events"`
}

// OrderTimeoutEvent is one ladder-exhaustion event.
type OrderTimeoutEvent struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// UnderlyingStat is a per-underlying leaderboard entry.
type UnderlyingStat struct {
	Underlying string  `json:"underlying"`
	Value      float64 `json:"value"` // trade count or PnL depending on the leaderboard
}
