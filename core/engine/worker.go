package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// outcome is the result of executing a single work item.
type outcome int

const (
	outcomeDone outcome = iota
	outcomeFailed
	outcomePoisoned
)

func (o outcome) String() string {
	switch o {
	case outcomeDone:
		return OutcomeOK
	case outcomeFailed:
		return OutcomePanic
	default:
		return OutcomePoisoned
	}
}

type worker struct {
	id int64
	e  *Engine
}

func (w *worker) run() {
	e := w.e
	log := e.log.With(slog.Int64("worker", w.id))
	log.Debug("worker started")

	var (
		held   *keyQueue
		exited bool
		retire bool
	)
	defer func() {
		if !exited {
			// runtime.Goexit inside a work item unwinds the worker
			if held != nil {
				e.release(held)
				e.metrics.ItemCompleted(e.name, OutcomePoisoned)
			}
			retire = true
		}
		n := e.active.Add(-1)
		e.metrics.WorkersActive(e.name, int(n))
		e.wg.Done()

		if retire {
			w.retire(log)
			return
		}
		log.Debug("worker exited")
	}()

	for {
		q := e.rot.Take()
		if q == nil {
			exited = true
			return
		}

		item, ok := e.dequeue(q)
		if !ok {
			e.release(q)
			continue
		}

		held = q
		out := w.execute(log, item)
		held = nil
		e.metrics.ItemCompleted(e.name, out.String())

		e.release(q)

		if out == outcomePoisoned {
			exited, retire = true, true
			return
		}
	}
}

// execute runs item on the worker goroutine. Panics are recovered and
// logged; a panic wrapping ErrFatal is re-raised after logging.
func (w *worker) execute(log *slog.Logger, item WorkItem) (out outcome) {
	e := w.e
	defer e.metrics.ItemDuration(e.name).ObserveDuration()

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := debug.Stack()
		log.Error("work item panicked", slog.Any("recovered", r), slog.String("stack", string(stack)))
		if e.cfg.onPanic != nil {
			e.cfg.onPanic(e.name, r, stack)
		}

		err, _ := r.(error)
		switch {
		case errors.Is(err, ErrFatal):
			panic(fmt.Errorf("engine %s: %w", e.name, err))
		case errors.Is(err, ErrWorkerPoisoned):
			out = outcomePoisoned
		default:
			out = outcomeFailed
		}
	}()

	item()
	return outcomeDone
}

// retire is called after a poisoned worker has left the pool. Unless the
// engine is stopped a replacement is started after the respawn delay.
func (w *worker) retire(log *slog.Logger) {
	e := w.e
	e.metrics.WorkerRetired(e.name)

	if e.State() == StateStopped {
		log.Debug("poisoned worker exited during stop")
		return
	}

	log.Warn("worker poisoned, retiring", slog.Duration("respawn_delay", e.cfg.respawnDelay))
	time.AfterFunc(e.cfg.respawnDelay, func() {
		e.spawnWorker()
	})
}
