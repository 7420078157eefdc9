package orders

import (
	"errors"
	"math"
	"testing"
	"time"

	"optionscore/internal/coreerr"
	"optionscore/internal/models"
)

// passingInput builds an input that clears all nine checks for an entry.
func passingInput() ValidationInput {
	return ValidationInput{
		Intent: models.OrderIntent{
			BrokerSymbol: "NIFTY06AUG23450CE",
			Side:         models.SideBuy,
			Qty:          50,
			LimitPrice:   150.05,
		},
		Instrument:      testInstrument,
		OpenPositions:   0,
		MaxPositions:    1,
		FreezeQty:       1800,
		LTP:             150,
		PriceBandPct:    0.20,
		MarginAvailable: 100_000,
		MarginRequired:  7_500,
		InEntryWindow:   true,
		Now:             time.Date(2026, 8, 3, 11, 0, 0, 0, time.UTC),
	}
}

func rejectedCheck(t *testing.T, err error) string {
	t.Helper()
	var rej *coreerr.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectionError", err)
	}
	return rej.Check
}

func TestValidatePasses(t *testing.T) {
	if err := Validate(passingInput()); err != nil {
		t.Fatalf("clean input rejected: %v", err)
	}
}

func TestValidateChecksInSpecOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ValidationInput)
		check  string
	}{
		{"position count", func(in *ValidationInput) { in.OpenPositions = 1 }, "position_count"},
		{"freeze qty", func(in *ValidationInput) { in.Intent.Qty = 2000 }, "freeze_qty"},
		{"lot size", func(in *ValidationInput) { in.Intent.Qty = 60 }, "lot_size"},
		{"tick size", func(in *ValidationInput) { in.Intent.LimitPrice = 150.07 }, "tick_size"},
		{"price band", func(in *ValidationInput) { in.Intent.LimitPrice = 200.05 }, "price_band"},
		{"margin", func(in *ValidationInput) { in.MarginAvailable = 1000 }, "margin"},
		{"daily loss", func(in *ValidationInput) { in.DailyLossTripped = true }, "daily_loss"},
		{"vix circuit", func(in *ValidationInput) { in.VixTripped = true }, "vix_circuit"},
		{"entry window", func(in *ValidationInput) { in.InEntryWindow = false }, "entry_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := passingInput()
			tt.mutate(&in)
			err := Validate(in)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if got := rejectedCheck(t, err); got != tt.check {
				t.Errorf("failed check = %s, want %s", got, tt.check)
			}
		})
	}
}

// When several checks would fail, the earliest in the fixed order wins.
func TestValidateFirstFailureWins(t *testing.T) {
	in := passingInput()
	in.Intent.Qty = 2000      // fails freeze qty (check 2) and margin math aside
	in.InEntryWindow = false  // would fail check 9
	if got := rejectedCheck(t, Validate(in)); got != "freeze_qty" {
		t.Errorf("failed check = %s, want the earliest (freeze_qty)", got)
	}
}

func TestValidateExitsSkipEntryOnlyChecks(t *testing.T) {
	in := passingInput()
	in.IsExit = true
	in.OpenPositions = 5 // over the cap
	in.DailyLossTripped = true
	in.VixTripped = true
	in.InEntryWindow = false // exits are permitted at any session time

	if err := Validate(in); err != nil {
		t.Errorf("exit rejected by entry-only checks: %v", err)
	}
}

func TestValidateTickToleranceAbsorbsFloatNoise(t *testing.T) {
	in := passingInput()
	// 150.10 is representable imprecisely; it must still pass the 0.05 grid.
	in.Intent.LimitPrice = 150.10
	if err := Validate(in); err != nil {
		t.Errorf("on-grid price rejected: %v", err)
	}
}

func TestRoundToTick(t *testing.T) {
	if got := RoundToTick(150.376, 0.05); math.Abs(got-150.40) > 1e-9 {
		t.Errorf("RoundToTick = %v, want 150.40", got)
	}
	if got := RoundToTick(150.37, 0); got != 150.37 {
		t.Errorf("zero tick must pass through, got %v", got)
	}
}
