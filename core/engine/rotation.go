package engine

import "sync"

// rotation is the round-robin ring of key queues that are ready to be
// serviced. Take blocks until a handle is available or the ring is closed,
// in which case it returns nil.
type rotation struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []*keyQueue
	head   int
	size   int
	closed bool
}

func newRotation() *rotation {
	r := &rotation{ring: make([]*keyQueue, 16)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// PushBack appends q to the tail. It reports false if the ring is closed.
func (r *rotation) PushBack(q *keyQueue) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if r.size == len(r.ring) {
		r.grow()
	}
	r.ring[(r.head+r.size)%len(r.ring)] = q
	r.size++
	r.cond.Signal()
	return true
}

// Take removes the head of the ring, blocking while it is empty.
// A nil result is the shutdown sentinel.
func (r *rotation) Take() *keyQueue {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.size == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return nil
	}
	q := r.ring[r.head]
	r.ring[r.head] = nil
	r.head = (r.head + 1) % len(r.ring)
	r.size--
	return q
}

func (r *rotation) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Close discards queued handles and wakes every blocked Take.
func (r *rotation) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	clear(r.ring)
	r.size = 0
	r.cond.Broadcast()
}

func (r *rotation) grow() {
	ring := make([]*keyQueue, len(r.ring)*2)
	for i := 0; i < r.size; i++ {
		ring[i] = r.ring[(r.head+i)%len(r.ring)]
	}
	r.ring = ring
	r.head = 0
}
