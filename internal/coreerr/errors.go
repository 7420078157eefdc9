package coreerr

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced as global conditions. Components compare with
// errors.Is; wrapped causes stay reachable through errors.As/Unwrap.
var (
	// ErrLedgerUnavailable aborts any gate-critical operation whose ledger
	// write failed. The engine degrades: no new signals, positions keep
	// being monitored in memory.
	ErrLedgerUnavailable = errors.New("event ledger unavailable")

	// ErrInsufficientSize rejects a signal whose computed quantity is zero lots.
	ErrInsufficientSize = errors.New("position size computes to zero lots")

	// ErrTokenInvalid marks a broker session that can no longer authenticate.
	ErrTokenInvalid = errors.New("broker session token invalid")

	// ErrDataGapDetected marks a sustained tick gap or OHLC integrity failure.
	ErrDataGapDetected = errors.New("market data gap detected")

	// ErrDuplicateEvent marks an idempotency key that was already processed
	// this session. The ledger does not return it; it reports duplicates
	// through the status of its reservation call.
	ErrDuplicateEvent = errors.New("duplicate idempotency key")

	// ErrInvariantViolation is fatal: the engine attempts to flatten and shuts down.
	ErrInvariantViolation = errors.New("internal invariant violation")

	// ErrMarketClosed rejects operations outside a trading session.
	ErrMarketClosed = errors.New("market session closed")
)

// RejectionError is a pre-trade validation failure. It is never retried at
// the same price; Retryable satisfies pkg/retry's classification interface.
type RejectionError struct {
	Check  string // which pre-trade check failed
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("pre-trade check %s failed: %s", e.Check, e.Reason)
}

func (e *RejectionError) Retryable() bool { return false }

// Reject builds a RejectionError for the named pre-trade check.
func Reject(check, format string, args ...interface{}) error {
	return &RejectionError{Check: check, Reason: fmt.Sprintf(format, args...)}
}

// OrderFailedError is the terminal failure of an order intent after the full
// retry ladder was exhausted. LastQuote captures the market at failure time.
type OrderFailedError struct {
	IntentID  string
	Attempts  int
	LastQuote float64
	Cause     error
}

func (e *OrderFailedError) Error() string {
	return fmt.Sprintf("order intent %s failed permanently after %d attempts (last quote %.2f): %v",
		e.IntentID, e.Attempts, e.LastQuote, e.Cause)
}

func (e *OrderFailedError) Unwrap() error    { return e.Cause }
func (e *OrderFailedError) Retryable() bool  { return false }

// InvariantError wraps ErrInvariantViolation with the violated condition.
type InvariantError struct {
	Condition string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated: %s", e.Condition)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariantViolation }

// Invariant returns an InvariantError for the given condition description.
func Invariant(format string, args ...interface{}) error {
	return &InvariantError{Condition: fmt.Sprintf(format, args...)}
}
