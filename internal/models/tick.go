package models

import "time"

// Tick is a single trade/quote update from the broker feed.
//
// Immutable once constructed. Produced by the broker transport, consumed by the
// Bar Aggregator and the Position Manager.
type Tick struct {
	Symbol     string
	Token      string
	TsExchange time.Time
	TsLocal    time.Time
	LTP        float64
	Bid        float64
	Ask        float64
	VolumeCum  int64
	OI         *int64 // open interest, nil when not applicable
}
