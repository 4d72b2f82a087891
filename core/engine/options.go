package engine

import (
	"log/slog"
	"time"
)

// OnPanic is invoked after a work item panicked. stack is the goroutine
// stack at the point of recovery.
type OnPanic func(engine string, recovered any, stack []byte)

// Option configures an Engine.
type Option func(*config)

type config struct {
	log          *slog.Logger
	metrics      Metrics
	respawnDelay time.Duration
	onPanic      OnPanic
}

func defaultConfig() *config {
	return &config{
		log:          slog.Default(),
		metrics:      NopMetrics(),
		respawnDelay: 10 * time.Millisecond,
	}
}

// WithLogger sets the logger used for worker lifecycle events
// (default: slog.Default()).
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics sets the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithRespawnDelay sets how long a retired worker waits before its
// replacement is started (default: 10ms).
func WithRespawnDelay(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.respawnDelay = d
		}
	}
}

// WithOnPanic installs a callback for recovered work item panics. The panic
// is always logged regardless.
func WithOnPanic(fn OnPanic) Option {
	return func(c *config) {
		c.onPanic = fn
	}
}
