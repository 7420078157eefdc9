package risk

import (
	"github.com/shopspring/decimal"

	"optionscore/internal/coreerr"
)

// SizingConfig holds the position-size inputs.
type SizingConfig struct {
	BasePositionSizePct float64 // fraction of account balance, default 0.02
	MaxPositionSize     int     // absolute qty cap
	FreezeQty           int     // exchange freeze quantity for the contract
}

// VixMultiplier interpolates the volatility sizing multiplier over the
// anchors (12, 1.25), (20, 1.00), (30, 0.75): capped at 1.25 below 12,
// sliding to a 0.50 floor above 30 on the last segment's slope.
func VixMultiplier(vix float64) float64 {
	type anchor struct{ x, y float64 }
	anchors := []anchor{{12, 1.25}, {20, 1.00}, {30, 0.75}}

	if vix <= anchors[0].x {
		return anchors[0].y
	}
	for i := 1; i < len(anchors); i++ {
		if vix <= anchors[i].x {
			a, b := anchors[i-1], anchors[i]
			return a.y + (vix-a.x)/(b.x-a.x)*(b.y-a.y)
		}
	}
	// Above the last anchor, continue its segment slope down to the floor.
	last, prev := anchors[len(anchors)-1], anchors[len(anchors)-2]
	slope := (last.y - prev.y) / (last.x - prev.x)
	m := last.y + (vix-last.x)*slope
	if m < 0.50 {
		return 0.50
	}
	return m
}

// DteMultiplier scales size down as expiry approaches. DTE 0 returns 0:
// no entry on expiry day.
func DteMultiplier(dte int) float64 {
	switch {
	case dte >= 5:
		return 1.00
	case dte >= 2:
		return 0.75
	case dte == 1:
		return 0.50
	default:
		return 0
	}
}

// PositionSize computes the order quantity:
//
//	base     = account_balance × base_pct
//	adjusted = base × vix_mult × dte_mult
//	lots     = floor(adjusted / (option_price × lot_size))
//	qty      = clamp(lots × lot_size, 0, min(max_position_size, freeze_qty))
//
// Sizing is money math, so it runs on decimals; the float inputs are exact
// at this magnitude. Returns ErrInsufficientSize when qty computes to 0.
func PositionSize(cfg SizingConfig, accountBalance, optionPrice float64, lotSize, dte int, vix float64) (int, error) {
	if optionPrice <= 0 || lotSize <= 0 {
		return 0, coreerr.ErrInsufficientSize
	}
	dteMult := DteMultiplier(dte)
	if dteMult == 0 {
		return 0, coreerr.ErrInsufficientSize
	}

	base := decimal.NewFromFloat(accountBalance).
		Mul(decimal.NewFromFloat(cfg.BasePositionSizePct))
	adjusted := base.
		Mul(decimal.NewFromFloat(VixMultiplier(vix))).
		Mul(decimal.NewFromFloat(dteMult))

	lotValue := decimal.NewFromFloat(optionPrice).Mul(decimal.NewFromInt(int64(lotSize)))
	lots := adjusted.Div(lotValue).Floor()

	qty := int(lots.IntPart()) * lotSize

	cap := cfg.MaxPositionSize
	if cfg.FreezeQty > 0 && (cap <= 0 || cfg.FreezeQty < cap) {
		cap = cfg.FreezeQty
	}
	if cap > 0 && qty > cap {
		// Re-floor to a whole lot under the cap.
		qty = (cap / lotSize) * lotSize
	}
	if qty <= 0 {
		return 0, coreerr.ErrInsufficientSize
	}
	return qty, nil
}
