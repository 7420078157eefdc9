package models

import "time"

// TradeRecord is the persisted row for one closed position, written to the
// per-day trades record.
type TradeRecord struct {
	ID            int       `json:"id" db:"id"`
	PositionID    string    `json:"position_id" db:"position_id"`
	Underlying    string    `json:"underlying" db:"underlying"`
	Symbol        string    `json:"symbol" db:"symbol"`
	Strike        float64   `json:"strike" db:"strike"`
	OptionType    string    `json:"option_type" db:"option_type"`
	Qty           int       `json:"qty" db:"qty"`
	EntryPrice    float64   `json:"entry_price" db:"entry_price"`
	ExitPrice     float64   `json:"exit_price" db:"exit_price"`
	EntryTime     time.Time `json:"entry_time" db:"entry_time"`
	ExitTime      time.Time `json:"exit_time" db:"exit_time"`
	RealizedPnl   float64   `json:"realized_pnl" db:"realized_pnl"`
	ExitReason    string    `json:"exit_reason" db:"exit_reason"`
	ExitSecondary string    `json:"exit_secondary,omitempty" db:"exit_secondary"`
	EntrySignalID string    `json:"entry_signal_id" db:"entry_signal_id"`
}

// TradeFromPosition builds the persisted row from a closed position.
func TradeFromPosition(p Position, exitTime time.Time) TradeRecord {
	secondary := ""
	for i, s := range p.PendingExitSecondary {
		if i > 0 {
			secondary += ","
		}
		secondary += s
	}
	return TradeRecord{
		PositionID:    p.ID,
		Underlying:    p.Underlying,
		Symbol:        p.Symbol,
		Strike:        p.Strike,
		OptionType:    string(p.OptionType),
		Qty:           p.Qty,
		EntryPrice:    p.EntryPrice,
		ExitPrice:     p.CurrentPrice,
		EntryTime:     p.EntryTime,
		ExitTime:      exitTime,
		RealizedPnl:   p.RealizedPnl,
		ExitReason:    p.PendingExitReason,
		ExitSecondary: secondary,
		EntrySignalID: p.EntrySignalID,
	}
}
