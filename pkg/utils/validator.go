package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// validator.go - input validation for the control surface and config.
//
// Every validator returns an error describing the problem, or nil.

var (
	symbolRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9 ._-]{1,39}$`)
	emailRe  = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ValidateSymbol checks a trading-symbol shape (e.g. NIFTY24AUG23450CE).
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if !symbolRe.MatchString(symbol) {
		return fmt.Errorf("symbol %q has invalid format", symbol)
	}
	return nil
}

// ValidateUnderlying checks an index name against the supported set.
func ValidateUnderlying(u string) error {
	switch u {
	case "NIFTY", "BANKNIFTY", "FINNIFTY":
		return nil
	default:
		return fmt.Errorf("unsupported underlying %q", u)
	}
}

// ValidateQty checks a positive quantity aligned to the lot size.
func ValidateQty(qty, lotSize int) error {
	if qty <= 0 {
		return fmt.Errorf("qty must be positive, got %d", qty)
	}
	if lotSize > 0 && qty%lotSize != 0 {
		return fmt.Errorf("qty %d is not a multiple of lot size %d", qty, lotSize)
	}
	return nil
}

// ValidatePrice checks a positive price.
func ValidatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %g", price)
	}
	return nil
}

// ValidatePercentage checks a fraction in (0, 1].
func ValidatePercentage(name string, v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("%s must be in (0, 1], got %g", name, v)
	}
	return nil
}

// ValidateStopLossPct checks the option stop-loss fraction in (0, 0.9].
func ValidateStopLossPct(v float64) error {
	if v <= 0 || v > 0.9 {
		return fmt.Errorf("stop loss pct must be in (0, 0.9], got %g", v)
	}
	return nil
}

// ValidateEmail checks an operator email address.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRe.MatchString(email) {
		return fmt.Errorf("email %q has invalid format", email)
	}
	return nil
}

// ValidateAPIKey runs a basic shape check on a broker API key.
func ValidateAPIKey(key string) error {
	if len(key) < 8 {
		return fmt.Errorf("api key too short")
	}
	if strings.ContainsAny(key, " \t\n") {
		return fmt.Errorf("api key contains whitespace")
	}
	return nil
}

// ValidateAPISecret runs a basic shape check on a broker API secret.
func ValidateAPISecret(secret string) error {
	if len(secret) < 8 {
		return fmt.Errorf("api secret too short")
	}
	if strings.ContainsAny(secret, " \t\n") {
		return fmt.Errorf("api secret contains whitespace")
	}
	return nil
}

// ValidationErrors accumulates field errors for the settings endpoints.
type ValidationErrors struct {
	Errors map[string]string `json:"errors"`
}

// NewValidationErrors returns an empty accumulator.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make(map[string]string)}
}

// AddError records one field failure.
func (ve *ValidationErrors) AddError(field, message string) {
	ve.Errors[field] = message
}

// HasErrors reports whether anything was recorded.
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// Error renders the accumulated failures.
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return ""
	}
	parts := make([]string, 0, len(ve.Errors))
	for field, msg := range ve.Errors {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
