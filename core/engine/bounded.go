package engine

import (
	"log/slog"
	"sync/atomic"
)

// BoundedEngine is an Engine that refuses submissions once the number of
// admitted items not yet picked up by a worker reaches a ceiling.
type BoundedEngine struct {
	*Engine
	ceiling int64
	pending atomic.Int64
}

// NewBounded creates a BoundedEngine. A ceiling < 1 is treated as 1.
func NewBounded(name string, workers, ceiling int, opts ...Option) *BoundedEngine {
	if ceiling < 1 {
		ceiling = 1
	}
	b := &BoundedEngine{ceiling: int64(ceiling)}
	b.Engine = newEngine(name, workers, hooks{
		dequeued: b.release,
		dropped:  b.reset,
	}, opts...)
	return b
}

// Ceiling returns the admission ceiling.
func (b *BoundedEngine) Ceiling() int { return int(b.ceiling) }

// Pending returns the number of admitted items not yet dequeued.
func (b *BoundedEngine) Pending() int { return int(b.pending.Load()) }

// Session returns a Session bound to a fresh key of this engine.
func (b *BoundedEngine) Session() *Session { return NewSession(b) }

// Submit is Engine.Submit behind admission control. It returns false
// without blocking when the ceiling is reached.
func (b *BoundedEngine) Submit(key any, item WorkItem) bool {
	if !b.reserve() {
		b.metrics.ItemRefused(b.name, RefusedCeiling)
		b.log.Debug("submission refused, ceiling reached", slog.Int64("ceiling", b.ceiling))
		return false
	}
	if !b.Engine.Submit(key, item) {
		b.release()
		return false
	}
	return true
}

func (b *BoundedEngine) reserve() bool {
	for {
		cur := b.pending.Load()
		if cur >= b.ceiling {
			return false
		}
		if b.pending.CompareAndSwap(cur, cur+1) {
			b.metrics.PendingItems(b.name, int(cur+1))
			return true
		}
	}
}

// reset clears the counter once Stop abandoned the queued items.
func (b *BoundedEngine) reset(int) {
	b.pending.Store(0)
	b.metrics.PendingItems(b.name, 0)
}

// release frees one admission slot. The counter never drops below zero,
// which can otherwise happen for items abandoned by Stop.
func (b *BoundedEngine) release() {
	for {
		cur := b.pending.Load()
		if cur <= 0 {
			return
		}
		if b.pending.CompareAndSwap(cur, cur-1) {
			b.metrics.PendingItems(b.name, int(cur-1))
			return
		}
	}
}
