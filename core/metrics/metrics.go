// Package metrics provides the backend-neutral instrument types used by the
// engine's Metrics hooks. Adapters (see adapters/prometheus) implement them.
package metrics

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
type Timer interface {
	// ObserveDuration records the elapsed time since the timer was created.
	ObserveDuration()
}
