package service

// Risk management lives in the trading core, not in the service layer.
// See internal/risk and internal/position for the implementation:
//
// - risk.Circuits: the layered circuit breakers
//   - OnVix / OnUnderlyingTick: VIX and flash-spike evaluation per tick
//   - EvaluateDailyLoss: realized+unrealized against the daily limit
//   - RecordConsecutiveLosses: loss-streak halt
//   - EntriesBlocked: the single gate the strategy consults before entries
//
// - risk.PositionSize / VixMultiplier / DteMultiplier: sizing math
//
// - position.Manager: tick-driven stop-loss, trailing, and the four-tier
//   exit evaluator; margin breaches force-exit the weakest position.
//
// The split exists because the breakers need tick-latency access to
// in-memory position state; a service-layer indirection through the
// database would be too slow to preempt an entry mid-dispatch. The service
// layer only reads snapshots (Manager.Snapshots, Circuits.Vix) for the
// status surface.
