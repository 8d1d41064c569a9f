package explorer

import "sync"

// queue is a blocking LIFO shared by several goroutines. A pop waits until
// an item is available.
type queue[T any] struct {
	items []T
	// signalled whenever items goes from empty to non-empty
	cond *sync.Cond
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{cond: sync.NewCond(new(sync.Mutex))}
}

func (q *queue[T]) push(item T) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	q.items = append(q.items, item)
	if len(q.items) == 1 {
		q.cond.Broadcast()
	}
}

func (q *queue[T]) pop() T {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	for len(q.items) == 0 {
		q.cond.Wait()
	}
	item := q.items[len(q.items)-1]
	var zero T
	q.items[len(q.items)-1] = zero
	q.items = q.items[:len(q.items)-1]
	return item
}

// drain removes every queued item without blocking.
func (q *queue[T]) drain() []T {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *queue[T]) len() int {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	return len(q.items)
}
