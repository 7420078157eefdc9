package models

import (
	"fmt"
	"time"
)

// Timeframe is a closed set of bar durations the core understands.
type Timeframe string

const (
	Timeframe1m    Timeframe = "1m"
	Timeframe5m    Timeframe = "5m"
	Timeframe15m   Timeframe = "15m"
	Timeframe1h    Timeframe = "1h"
	TimeframeDaily Timeframe = "1d"
)

// Duration returns the wall-clock span of the timeframe. Daily has no fixed
// duration (it spans the session) and returns 0.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	default:
		return 0
	}
}

// Bar is a single OHLCV candle for one (symbol, timeframe). Once Complete is
// true the bar is immutable — callers must never mutate a stored bar.
type Bar struct {
	Symbol    string
	Timeframe Timeframe
	BarStart  time.Time
	BarEnd    time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Complete  bool
	Synthetic bool // true only for underlying bars interpolated across a short gap
}

// Validate checks the OHLC invariants from the data model: h >= max(o,c),
// l <= min(o,c), and bar_end - bar_start == timeframe (for intraday bars).
func (b Bar) Validate() error {
	maxOC := b.Open
	if b.Close > maxOC {
		maxOC = b.Close
	}
	minOC := b.Open
	if b.Close < minOC {
		minOC = b.Close
	}
	if b.High < maxOC {
		return fmt.Errorf("bar %s %s@%s: high %.4f below max(open,close) %.4f", b.Symbol, b.Timeframe, b.BarStart, b.High, maxOC)
	}
	if b.Low > minOC {
		return fmt.Errorf("bar %s %s@%s: low %.4f above min(open,close) %.4f", b.Symbol, b.Timeframe, b.BarStart, b.Low, minOC)
	}
	if d := b.Timeframe.Duration(); d > 0 && b.BarEnd.Sub(b.BarStart) != d {
		return fmt.Errorf("bar %s %s@%s: span %s does not match timeframe %s", b.Symbol, b.Timeframe, b.BarStart, b.BarEnd.Sub(b.BarStart), d)
	}
	return nil
}

// SameOHLCV reports whether two bars carry identical price/volume data,
// used by the Bar Store to detect a benign duplicate write vs an integrity error.
func (b Bar) SameOHLCV(o Bar) bool {
	return b.Open == o.Open && b.High == o.High && b.Low == o.Low && b.Close == o.Close && b.Volume == o.Volume
}
