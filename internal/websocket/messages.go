package websocket

import (
	"time"

	"optionscore/internal/models"
)

// MessageType discriminates WebSocket messages to the dashboard.
type MessageType string

const (
	// MessageTypePositionUpdate - a position snapshot; the app sends it when
	// a position opens and when it closes, not on every tick.
	MessageTypePositionUpdate MessageType = "positionUpdate"

	// MessageTypeEngineState - an engine health transition (Healthy,
	// Degraded, Halted, ShuttingDown) with its reason.
	MessageTypeEngineState MessageType = "engineState"

	// MessageTypeNotification - a new journal entry (entry, exit, stop
	// loss, halt, error, margin, order timeout).
	MessageTypeNotification MessageType = "notification"

	// MessageTypeStatsUpdate - aggregate refresh sent by
	// Hub.BroadcastStatsUpdate; the app does not send it when a trade closes.
	MessageTypeStatsUpdate MessageType = "statsUpdate"
)

// BaseMessage carries the type tag and send time of every message.
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PositionUpdateMessage pushes one open position's live state.
type PositionUpdateMessage struct {
	BaseMessage
	Data *PositionUpdateData `json:"data"`
}

// PositionUpdateData is the dashboard's view of a position.
type PositionUpdateData struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	Underlying     string  `json:"underlying"`
	Strike         float64 `json:"strike"`
	OptionType     string  `json:"option_type"`
	Qty            int     `json:"qty"`
	EntryPrice     float64 `json:"entry_price"`
	CurrentPrice   float64 `json:"current_price"`
	StopLoss       float64 `json:"stop_loss"`
	TrailingActive bool    `json:"trailing_active"`
	TrailingStop   float64 `json:"trailing_stop,omitempty"`
	UnrealizedPnl  float64 `json:"unrealized_pnl"`
	Status         string  `json:"status"`
}

// EngineStateMessage pushes an engine health transition.
type EngineStateMessage struct {
	BaseMessage
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// NotificationMessage pushes a new journal entry.
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData is the dashboard's view of a notification.
type NotificationData struct {
	ID         int                    `json:"id"`
	Type       string                 `json:"type"`
	Severity   string                 `json:"severity"`
	PositionID *string                `json:"position_id,omitempty"`
	Message    string                 `json:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// StatsUpdateMessage pushes the refreshed aggregates.
type StatsUpdateMessage struct {
	BaseMessage
	Data *StatsUpdateData `json:"data"`
}

// StatsUpdateData is the dashboard's view of the aggregates.
type StatsUpdateData struct {
	TodayTrades int `json:"today_trades"`
	WeekTrades  int `json:"week_trades"`
	MonthTrades int `json:"month_trades"`
	TotalTrades int `json:"total_trades"`

	TodayPnl float64 `json:"today_pnl"`
	WeekPnl  float64 `json:"week_pnl"`
	MonthPnl float64 `json:"month_pnl"`
	TotalPnl float64 `json:"total_pnl"`

	StopLossToday int `json:"stop_loss_today"`
	StopLossWeek  int `json:"stop_loss_week"`
	StopLossMonth int `json:"stop_loss_month"`

	OrderTimeoutsToday int `json:"order_timeouts_today"`
	OrderTimeoutsWeek  int `json:"order_timeouts_week"`
	OrderTimeoutsMonth int `json:"order_timeouts_month"`
}

// ============ Factory helpers ============

// NewPositionUpdateMessage builds a position push from a snapshot.
func NewPositionUpdateMessage(p models.Position) *PositionUpdateMessage {
	return &PositionUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionUpdate,
			Timestamp: time.Now(),
		},
		Data: &PositionUpdateData{
			ID:             p.ID,
			Symbol:         p.Symbol,
			Underlying:     p.Underlying,
			Strike:         p.Strike,
			OptionType:     string(p.OptionType),
			Qty:            p.Qty,
			EntryPrice:     p.EntryPrice,
			CurrentPrice:   p.CurrentPrice,
			StopLoss:       p.StopLoss,
			TrailingActive: p.TrailingActive,
			TrailingStop:   p.TrailingStop,
			UnrealizedPnl:  p.UnrealizedPnl,
			Status:         string(p.Status),
		},
	}
}

// NewEngineStateMessage builds an engine state push.
func NewEngineStateMessage(state, reason string) *EngineStateMessage {
	return &EngineStateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeEngineState,
			Timestamp: time.Now(),
		},
		State:  state,
		Reason: reason,
	}
}

// NewNotificationMessage builds a notification push.
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: &NotificationData{
			ID:         notif.ID,
			Type:       notif.Type,
			Severity:   notif.Severity,
			PositionID: notif.PositionID,
			Message:    notif.Message,
			Meta:       notif.Meta,
			Timestamp:  notif.Timestamp,
		},
	}
}

// NewStatsUpdateMessage builds a stats push.
func NewStatsUpdateMessage(stats *models.Stats) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatsUpdate,
			Timestamp: time.Now(),
		},
		Data: &StatsUpdateData{
			TodayTrades: stats.TodayTrades,
			WeekTrades:  stats.WeekTrades,
			MonthTrades: stats.MonthTrades,
			TotalTrades: stats.TotalTrades,

			TodayPnl: stats.TodayPnl,
			WeekPnl:  stats.WeekPnl,
			MonthPnl: stats.MonthPnl,
			TotalPnl: stats.TotalPnl,

			StopLossToday: stats.StopLossStats.Today,
			StopLossWeek:  stats.StopLossStats.Week,
			StopLossMonth: stats.StopLossStats.Month,

			OrderTimeoutsToday: stats.OrderTimeoutStats.Today,
			OrderTimeoutsWeek:  stats.OrderTimeoutStats.Week,
			OrderTimeoutsMonth: stats.OrderTimeoutStats.Month,
		},
	}
}
