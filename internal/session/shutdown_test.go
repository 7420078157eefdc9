package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDrainRunsAllClosersInOrder(t *testing.T) {
	var order []string
	err := Drain(5*time.Second, testLogger(),
		Closer{Name: "a", Close: func(context.Context) error { order = append(order, "a"); return nil }},
		Closer{Name: "b", Close: func(context.Context) error { order = append(order, "b"); return nil }},
	)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v", order)
	}
}

func TestDrainAccumulatesErrors(t *testing.T) {
	boom := errors.New("flush failed")
	var closedBroker bool
	err := Drain(5*time.Second, testLogger(),
		Closer{Name: "ledger", Close: func(context.Context) error { return boom }},
		Closer{Name: "broker", Close: func(context.Context) error { closedBroker = true; return nil }},
	)
	if err == nil {
		t.Fatal("drain should surface the ledger error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("accumulated error should wrap the cause, got %v", err)
	}
	if !closedBroker {
		t.Error("a failing closer must not stop later closers")
	}
	if !strings.Contains(err.Error(), "ledger") {
		t.Errorf("error should name the subsystem: %v", err)
	}
}
