package sim

import "sync"

// Inbox is an unbounded multi-producer, single-consumer queue.
// Any goroutine may Push; only the owner drains.
type Inbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func NewInbox[T any]() *Inbox[T] {
	return &Inbox[T]{notify: make(chan struct{}, 1)}
}

// Push appends v and wakes the consumer if it is waiting.
func (q *Inbox[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len reports the number of queued items.
func (q *Inbox[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued item in arrival order.
func (q *Inbox[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// DrainFunc removes and returns the items for which take reports true.
// The rest stay queued in their original order.
func (q *Inbox[T]) DrainFunc(take func(T) bool) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []T
	kept := q.items[:0]
	for _, v := range q.items {
		if take(v) {
			out = append(out, v)
		} else {
			kept = append(kept, v)
		}
	}
	// Clear the tail so dropped references can be collected.
	var zero T
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = zero
	}
	q.items = kept
	return out
}

// Notify fires at least once after each Push that happened while nobody was listening.
func (q *Inbox[T]) Notify() <-chan struct{} {
	return q.notify
}
