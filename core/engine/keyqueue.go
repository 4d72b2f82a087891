package engine

// keyQueue is the FIFO of pending items for a single affinity key.
// It is not synchronized; callers hold Engine.mu.
type keyQueue struct {
	key   any
	items []WorkItem
	head  int
}

func newKeyQueue(key any) *keyQueue {
	return &keyQueue{key: key}
}

func (q *keyQueue) Key() any { return q.key }

func (q *keyQueue) Size() int { return len(q.items) - q.head }

func (q *keyQueue) IsEmpty() bool { return q.Size() == 0 }

func (q *keyQueue) Push(item WorkItem) {
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest item.
func (q *keyQueue) Pop() (WorkItem, bool) {
	if q.IsEmpty() {
		return nil, false
	}
	item := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// reclaim the consumed prefix once it dominates the backing array
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// drop releases all pending items.
func (q *keyQueue) drop() int {
	n := q.Size()
	clear(q.items)
	q.items = nil
	q.head = 0
	return n
}
