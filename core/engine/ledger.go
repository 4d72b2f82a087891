package engine

// ledger maps affinity keys to their queues. It is guarded by Engine.mu.
type ledger struct {
	queues map[any]*keyQueue
}

func newLedger() ledger {
	return ledger{queues: make(map[any]*keyQueue)}
}

// enqueue appends item to the queue for key, creating the queue if the key
// had no pending work. created reports whether the queue must be published
// to the rotation. Non-comparable keys panic inside the map lookup.
func (l *ledger) enqueue(key any, item WorkItem) (q *keyQueue, created bool) {
	q, ok := l.queues[key]
	if !ok {
		q = newKeyQueue(key)
		l.queues[key] = q
		created = true
	}
	q.Push(item)
	return q, created
}

// remove deletes q from the ledger if it is still the queue registered for
// its key.
func (l *ledger) remove(q *keyQueue) {
	if cur, ok := l.queues[q.key]; ok && cur == q {
		delete(l.queues, q.key)
	}
}

func (l *ledger) has(key any) bool {
	_, ok := l.queues[key]
	return ok
}

func (l *ledger) len() int { return len(l.queues) }

// reset drops every queue and returns the number of abandoned items.
func (l *ledger) reset() (dropped int) {
	for _, q := range l.queues {
		dropped += q.drop()
	}
	l.queues = make(map[any]*keyQueue)
	return dropped
}
