package engine

import "errors"

var (
	// Engine errors
	ErrEngineStopped    = errors.New("engine stopped")
	ErrKeyRequired      = errors.New("affinity key is required")
	ErrItemRequired     = errors.New("work item is required")
	ErrSchedulingFailed = errors.New("scheduling failed")

	// Worker errors. A work item panics with an error wrapping
	// ErrWorkerPoisoned to retire its worker, or ErrFatal to crash the process
	// after the panic has been logged.
	ErrWorkerPoisoned = errors.New("worker poisoned")
	ErrFatal          = errors.New("fatal work item failure")

	// Registry errors
	ErrEngineExists   = errors.New("engine already registered")
	ErrEngineNotFound = errors.New("engine not found")
)
