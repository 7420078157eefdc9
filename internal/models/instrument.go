package models

import "time"

// OptionType enumerates the instrument kinds the core trades or watches.
type OptionType string

const (
	OptionCE        OptionType = "CE"
	OptionPE        OptionType = "PE"
	OptionFuture    OptionType = "FUT"
	OptionUnderlying OptionType = "UNDERLYING"
	OptionIndex     OptionType = "INDEX"
)

// Instrument is immutable per session and owned by the Instrument Cache.
type Instrument struct {
	Token           string
	TradingSymbol   string
	Underlying      string
	Expiry          time.Time
	Strike          float64
	OptionType      OptionType
	LotSize         int
	TickSize        float64
	ExchangeSegment string
	PriceBandPct    float64
}

// DTE returns whole days to expiry measured from the given reference time.
func (i Instrument) DTE(asOf time.Time) int {
	d := i.Expiry.Truncate(24 * time.Hour).Sub(asOf.Truncate(24 * time.Hour))
	return int(d.Hours() / 24)
}
