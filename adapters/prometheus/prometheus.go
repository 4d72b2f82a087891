// Package prometheus provides a Prometheus implementation of the engine
// metrics interface.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/keyexec-go/core/metrics"
)

// itemTimer adapts prometheus.Timer, whose ObserveDuration also returns the
// elapsed time, to metrics.Timer.
type itemTimer struct {
	t *prometheus.Timer
}

func newTimer(o prometheus.Observer) metrics.Timer {
	return itemTimer{t: prometheus.NewTimer(o)}
}

func (it itemTimer) ObserveDuration() {
	it.t.ObserveDuration()
}

// Default histogram buckets for work item latency (in seconds).
var defaultBuckets = []float64{
	.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}
