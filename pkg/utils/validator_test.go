package utils

import (
	"strings"
	"testing"
)

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		wantErr bool
	}{
		{"option symbol", "NIFTY07AUG2523450CE", false},
		{"index symbol", "NIFTY", false},
		{"vix with space", "INDIA VIX", false},
		{"empty", "", true},
		{"lowercase", "nifty", true},
		{"too long", strings.Repeat("A", 50), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSymbol(tt.symbol)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSymbol(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUnderlying(t *testing.T) {
	for _, u := range []string{"NIFTY", "BANKNIFTY", "FINNIFTY"} {
		if err := ValidateUnderlying(u); err != nil {
			t.Errorf("ValidateUnderlying(%q) = %v, want nil", u, err)
		}
	}
	if err := ValidateUnderlying("SENSEX"); err == nil {
		t.Error("ValidateUnderlying(SENSEX) should fail")
	}
	if err := ValidateUnderlying(""); err == nil {
		t.Error("ValidateUnderlying empty should fail")
	}
}

func TestValidateQty(t *testing.T) {
	tests := []struct {
		name    string
		qty     int
		lotSize int
		wantErr bool
	}{
		{"one lot", 50, 50, false},
		{"three lots", 150, 50, false},
		{"not a lot multiple", 60, 50, true},
		{"zero", 0, 50, true},
		{"negative", -50, 50, true},
		{"zero lot size skips check", 37, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQty(tt.qty, tt.lotSize)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateQty(%d, %d) error = %v, wantErr %v", tt.qty, tt.lotSize, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePrice(t *testing.T) {
	if err := ValidatePrice(150.05); err != nil {
		t.Errorf("ValidatePrice(150.05) = %v", err)
	}
	if err := ValidatePrice(0); err == nil {
		t.Error("ValidatePrice(0) should fail")
	}
	if err := ValidatePrice(-1); err == nil {
		t.Error("ValidatePrice(-1) should fail")
	}
}

func TestValidatePercentage(t *testing.T) {
	if err := ValidatePercentage("base_size", 0.02); err != nil {
		t.Errorf("ValidatePercentage(0.02) = %v", err)
	}
	if err := ValidatePercentage("base_size", 1.0); err != nil {
		t.Errorf("ValidatePercentage(1.0) = %v", err)
	}
	for _, v := range []float64{0, -0.1, 1.01} {
		if err := ValidatePercentage("base_size", v); err == nil {
			t.Errorf("ValidatePercentage(%v) should fail", v)
		}
	}
}

func TestValidateStopLossPct(t *testing.T) {
	if err := ValidateStopLossPct(0.20); err != nil {
		t.Errorf("ValidateStopLossPct(0.20) = %v", err)
	}
	for _, v := range []float64{0, 0.95, -0.2} {
		if err := ValidateStopLossPct(v); err == nil {
			t.Errorf("ValidateStopLossPct(%v) should fail", v)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"ops@example.com", "a.b+c@sub.domain.in"}
	invalid := []string{"", "not-an-email", "@missing.local", "user@"}

	for _, e := range valid {
		if err := ValidateEmail(e); err != nil {
			t.Errorf("ValidateEmail(%q) = %v, want nil", e, err)
		}
	}
	for _, e := range invalid {
		if err := ValidateEmail(e); err == nil {
			t.Errorf("ValidateEmail(%q) should fail", e)
		}
	}
}

func TestValidateAPIKey(t *testing.T) {
	if err := ValidateAPIKey("abcdef1234567890"); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if err := ValidateAPIKey("short"); err == nil {
		t.Error("short key should fail")
	}
	if err := ValidateAPIKey("has space12345"); err == nil {
		t.Error("key with whitespace should fail")
	}
}

func TestValidateAPISecret(t *testing.T) {
	if err := ValidateAPISecret("s3cr3ts3cr3t"); err != nil {
		t.Errorf("valid secret rejected: %v", err)
	}
	if err := ValidateAPISecret("short"); err == nil {
		t.Error("short secret should fail")
	}
}

func TestValidationErrors(t *testing.T) {
	ve := NewValidationErrors()
	if ve.HasErrors() {
		t.Error("fresh accumulator should have no errors")
	}
	if ve.Error() != "" {
		t.Errorf("empty accumulator Error() = %q", ve.Error())
	}

	ve.AddError("qty", "not a lot multiple")
	ve.AddError("price", "off tick grid")

	if !ve.HasErrors() {
		t.Error("accumulator should report errors")
	}
	msg := ve.Error()
	if !strings.Contains(msg, "qty") || !strings.Contains(msg, "price") {
		t.Errorf("Error() missing fields: %q", msg)
	}
	if !strings.HasPrefix(msg, "validation failed: ") {
		t.Errorf("Error() prefix wrong: %q", msg)
	}
}
