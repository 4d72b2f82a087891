package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// WorkItem is a unit of work submitted to an Engine.
type WorkItem func()

// State is the lifecycle state of an Engine.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// hooks lets wrappers observe item accounting of the scheduling core.
type hooks struct {
	dequeued func()
	dropped  func(n int)
}

// Engine runs work items on a fixed pool of workers such that items sharing
// an affinity key execute sequentially in submission order, while items of
// different keys run concurrently. Keys are serviced round-robin.
type Engine struct {
	name    string
	size    int
	log     *slog.Logger
	metrics Metrics
	cfg     *config
	hooks   hooks

	mu          sync.Mutex
	state       State
	ledger      ledger
	drained     chan struct{}
	drainClosed bool

	rot *rotation

	active    atomic.Int32
	workerSeq atomic.Int64
	wg        sync.WaitGroup
	done      chan struct{}
}

// New creates an Engine with the given number of workers and starts them.
// An empty name is replaced by a generated one; workers < 1 is treated as 1.
func New(name string, workers int, opts ...Option) *Engine {
	return newEngine(name, workers, hooks{}, opts...)
}

func newEngine(name string, workers int, h hooks, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if name == "" {
		name = fmt.Sprintf("engine-%s", gonanoid.Must(6))
	}
	if workers < 1 {
		workers = 1
	}

	e := &Engine{
		name:    name,
		size:    workers,
		log:     cfg.log.With(slog.String("engine", name)),
		metrics: cfg.metrics,
		cfg:     cfg,
		hooks:   h,
		state:   StateRunning,
		ledger:  newLedger(),
		drained: make(chan struct{}),
		rot:     newRotation(),
		done:    make(chan struct{}),
	}

	e.log.Debug("starting engine", slog.Int("workers", workers))
	for i := 0; i < workers; i++ {
		e.spawnWorker()
	}
	return e
}

func (e *Engine) Name() string { return e.name }

// Workers returns the configured pool size.
func (e *Engine) Workers() int { return e.size }

// ActiveWorkers returns the number of live workers.
func (e *Engine) ActiveWorkers() int { return int(e.active.Load()) }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// KeyCount returns the number of keys with pending or in-flight work.
func (e *Engine) KeyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.len()
}

// HasKey reports whether key has pending or in-flight work.
func (e *Engine) HasKey(key any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.has(key)
}

// Done is closed once the engine is stopped and every worker has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Session returns a Session bound to a fresh key of this engine.
func (e *Engine) Session() *Session { return NewSession(e) }

// Submit enqueues item under key. It returns false without enqueueing if the
// engine is not running, key or item is nil, or the key cannot be scheduled.
// Submit never blocks on workers.
func (e *Engine) Submit(key any, item WorkItem) bool {
	if err := e.submit(key, item); err != nil {
		e.metrics.ItemRefused(e.name, refusalReason(err))
		if errors.Is(err, ErrSchedulingFailed) {
			e.log.Error("submit failed", slog.Any("key", key), slog.Any("error", err))
		}
		return false
	}
	e.metrics.ItemAccepted(e.name)
	return true
}

func (e *Engine) submit(key any, item WorkItem) error {
	if key == nil {
		return ErrKeyRequired
	}
	if item == nil {
		return ErrItemRequired
	}

	q, created, err := e.enqueue(key, item)
	if err != nil {
		return err
	}

	// Publish outside the ledger lock: a worker blocked in Take must see a
	// fully constructed queue as soon as it receives the handle.
	if created && !e.rot.PushBack(q) {
		return ErrEngineStopped
	}

	if int(e.active.Load()) < e.size {
		e.spawnWorker()
	}
	return nil
}

func (e *Engine) enqueue(key any, item WorkItem) (q *keyQueue, created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSchedulingFailed, r)
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateRunning {
		return nil, false, ErrEngineStopped
	}
	q, created = e.ledger.enqueue(key, item)
	if created {
		e.metrics.KeysActive(e.name, e.ledger.len())
	}
	return q, created, nil
}

// Stop halts the engine immediately. Pending items are abandoned and blocked
// workers are released; items already executing run to completion. Stop does
// not wait for them, use Done for that. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	e.state = StateStopped
	dropped := e.ledger.reset()
	e.closeDrainedLocked()
	e.metrics.KeysActive(e.name, 0)
	e.mu.Unlock()

	e.rot.Close()
	if dropped > 0 && e.hooks.dropped != nil {
		e.hooks.dropped(dropped)
	}

	go func() {
		e.wg.Wait()
		close(e.done)
	}()

	e.log.Info("engine stopped", slog.Int("dropped", dropped))
}

// StopWhenEmpty stops accepting new items, waits until every queued and
// in-flight item has completed and then stops the engine. If ctx ends first
// the engine stays draining and the context error is returned. Calling it on
// a stopped engine is a no-op.
func (e *Engine) StopWhenEmpty(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateStopped:
		e.mu.Unlock()
		return nil
	case StateRunning:
		e.state = StateDraining
		e.log.Info("engine draining", slog.Int("keys", e.ledger.len()))
	}
	if e.ledger.len() == 0 {
		e.closeDrainedLocked()
	}
	e.mu.Unlock()

	select {
	case <-e.drained:
	case <-ctx.Done():
		return fmt.Errorf("engine %s: drain: %w", e.name, ctx.Err())
	}

	e.Stop()
	return nil
}

func (e *Engine) closeDrainedLocked() {
	if !e.drainClosed {
		e.drainClosed = true
		close(e.drained)
	}
}

// spawnWorker starts one worker unless the pool is full or the engine is
// stopped.
func (e *Engine) spawnWorker() bool {
	e.mu.Lock()
	if e.state == StateStopped || int(e.active.Load()) >= e.size {
		e.mu.Unlock()
		return false
	}
	n := e.active.Add(1)
	e.wg.Add(1)
	e.mu.Unlock()

	w := &worker{
		id: e.workerSeq.Add(1),
		e:  e,
	}
	go w.run()

	e.metrics.WorkersActive(e.name, int(n))
	return true
}

// dequeue pops the next item of q for execution.
func (e *Engine) dequeue(q *keyQueue) (WorkItem, bool) {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return nil, false
	}
	item, ok := q.Pop()
	e.mu.Unlock()

	if ok {
		e.metrics.ItemDequeued(e.name)
		if e.hooks.dequeued != nil {
			e.hooks.dequeued()
		}
	}
	return item, ok
}

// release hands q back after one of its items ran: an empty queue is removed
// from the ledger, otherwise q goes to the tail of the rotation.
func (e *Engine) release(q *keyQueue) {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	if q.IsEmpty() {
		e.ledger.remove(q)
		keys := e.ledger.len()
		if keys == 0 && e.state == StateDraining {
			e.closeDrainedLocked()
		}
		e.metrics.KeysActive(e.name, keys)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.rot.PushBack(q)
}

func refusalReason(err error) string {
	switch {
	case errors.Is(err, ErrEngineStopped):
		return RefusedStopped
	case errors.Is(err, ErrKeyRequired), errors.Is(err, ErrItemRequired):
		return RefusedInvalid
	default:
		return RefusedInternal
	}
}
