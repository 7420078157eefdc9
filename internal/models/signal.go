package models

import "time"

// SignalKind is the closed set of intents the Strategy Core and Risk layer can raise.
type SignalKind string

const (
	SignalEntryLongCE SignalKind = "ENTRY_LONG_CE"
	SignalEntryLongPE SignalKind = "ENTRY_LONG_PE"
	SignalExit        SignalKind = "EXIT"
)

// Signal is the Strategy/Risk layer's request to act; it carries no order
// details, only what to do and why. OrderIntent is derived from it.
type Signal struct {
	ID             string
	Kind           SignalKind
	Symbol         string
	Strike         float64
	Reason         string
	Ts             time.Time
	IdempotencyKey string
}
