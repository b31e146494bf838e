package watchgroup

import (
	"sync"

	"github.com/ilovepumpkin/dsa-historian/internal/watch"
)

// queue is a FIFO of pending WatchUpdates shared by the pool-dispatch
// goroutines (producers) and the buffer-flush goroutine (consumer). A
// mutex-guarded slice is used rather than a lock-free deque: the
// corpus carries no lock-free queue implementation, and a group's
// flush cadence (seconds, not microseconds) makes the lock's
// contention cost irrelevant. See DESIGN.md for why a priority queue
// library was rejected here.
type queue struct {
	mu    sync.Mutex
	items []*watch.WatchUpdate
}

func newQueue() *queue {
	return &queue{}
}

// enqueue appends u to the tail.
func (q *queue) enqueue(u *watch.WatchUpdate) {
	q.mu.Lock()
	q.items = append(q.items, u)
	q.mu.Unlock()
}

// len reports the current queue size.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drainAll removes and returns every queued item, oldest first.
func (q *queue) drainAll() []*watch.WatchUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// drainN removes and returns up to n items from the head, oldest
// first. Used by the flush tick, which samples the queue length once
// and polls exactly that many entries so a producer racing the flush
// cannot starve it indefinitely.
func (q *queue) drainN(n int) []*watch.WatchUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	if n == 0 {
		return nil
	}
	items := q.items[:n]
	q.items = q.items[n:]
	return items
}

// clear discards every queued item without returning them, used by
// unsubscribe's explicit drop-in-flight-updates behavior.
func (q *queue) clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
