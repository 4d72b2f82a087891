package engine

import "github.com/codewandler/keyexec-go/core/metrics"

// Refusal reasons reported to Metrics.ItemRefused.
const (
	RefusedStopped  = "stopped"
	RefusedInvalid  = "invalid"
	RefusedCeiling  = "ceiling"
	RefusedInternal = "internal"
)

// Item outcomes reported to Metrics.ItemCompleted.
const (
	OutcomeOK       = "ok"
	OutcomePanic    = "panic"
	OutcomePoisoned = "poisoned"
)

// Metrics defines the instrumentation hooks of an Engine.
// All methods are thread-safe. KeysActive is called with the engine lock held
// so successive values arrive in ledger order; implementations must not block.
type Metrics interface {
	// Admission
	ItemAccepted(engine string)
	ItemRefused(engine, reason string)
	PendingItems(engine string, n int)

	// Execution
	ItemDequeued(engine string)
	ItemDuration(engine string) metrics.Timer
	ItemCompleted(engine, outcome string)

	// Pool and ledger
	WorkersActive(engine string, n int)
	WorkerRetired(engine string)
	KeysActive(engine string, n int)
}

type nopMetrics struct{}

func (nopMetrics) ItemAccepted(string)               {}
func (nopMetrics) ItemRefused(string, string)        {}
func (nopMetrics) PendingItems(string, int)          {}
func (nopMetrics) ItemDequeued(string)               {}
func (nopMetrics) ItemDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) ItemCompleted(string, string)      {}
func (nopMetrics) WorkersActive(string, int)         {}
func (nopMetrics) WorkerRetired(string)              {}
func (nopMetrics) KeysActive(string, int)            {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
