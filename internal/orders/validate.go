package orders

import (
	"math"
	"time"

	"optionscore/internal/coreerr"
	"optionscore/internal/models"
)

// tickTolerance absorbs float representation error in the tick-size check.
const tickTolerance = 1e-6

// ValidationInput carries everything the nine pre-trade checks consume.
type ValidationInput struct {
	Intent     models.OrderIntent
	Instrument models.Instrument
	IsExit     bool

	OpenPositions   int
	MaxPositions    int
	FreezeQty       int
	LTP             float64
	PriceBandPct    float64
	MarginAvailable float64
	MarginRequired  float64
	DailyLossTripped bool
	VixTripped       bool
	InEntryWindow    bool
	Now              time.Time
}

// Validate runs the nine pre-trade checks in their fixed order; the first failure
// retires the signal with OrderRejected(pre_trade, reason).
func Validate(in ValidationInput) error {
	// 1. Position count.
	if !in.IsExit && in.MaxPositions > 0 && in.OpenPositions >= in.MaxPositions {
		return coreerr.Reject("position_count", "open positions %d at limit %d", in.OpenPositions, in.MaxPositions)
	}

	// 2. Freeze quantity.
	if in.FreezeQty > 0 && in.Intent.Qty > in.FreezeQty {
		return coreerr.Reject("freeze_qty", "qty %d exceeds freeze qty %d", in.Intent.Qty, in.FreezeQty)
	}

	// 3. Lot-size multiple.
	if ls := in.Instrument.LotSize; ls > 0 && in.Intent.Qty%ls != 0 {
		return coreerr.Reject("lot_size", "qty %d not a multiple of lot size %d", in.Intent.Qty, ls)
	}

	// 4. Tick-size multiple, within tolerance.
	if ts := in.Instrument.TickSize; ts > 0 {
		rem := math.Mod(in.Intent.LimitPrice, ts)
		if rem > tickTolerance && ts-rem > tickTolerance {
			return coreerr.Reject("tick_size", "price %.4f not on tick %.4f", in.Intent.LimitPrice, ts)
		}
	}

	// 5. Price band around LTP.
	if in.LTP > 0 && in.PriceBandPct > 0 {
		if math.Abs(in.Intent.LimitPrice-in.LTP) > in.PriceBandPct*in.LTP {
			return coreerr.Reject("price_band", "price %.2f outside %.2f%% band of ltp %.2f",
				in.Intent.LimitPrice, in.PriceBandPct*100, in.LTP)
		}
	}

	// 6. Margin.
	if in.MarginRequired > 0 && in.MarginAvailable < in.MarginRequired {
		return coreerr.Reject("margin", "available %.0f below required %.0f", in.MarginAvailable, in.MarginRequired)
	}

	// 7. Daily loss limit.
	if !in.IsExit && in.DailyLossTripped {
		return coreerr.Reject("daily_loss", "daily loss limit tripped")
	}

	// 8. VIX circuit.
	if !in.IsExit && in.VixTripped {
		return coreerr.Reject("vix_circuit", "vix circuit tripped")
	}

	// 9. Time of day: entries only inside the entry window; exits always.
	if !in.IsExit && !in.InEntryWindow {
		return coreerr.Reject("entry_window", "entries not permitted at %s", in.Now.Format("15:04:05"))
	}

	return nil
}

// RoundToTick snaps a price to the instrument's tick size, rounding half up.
// Prices are rounded only at order-boundary moments, never in indicator math.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
