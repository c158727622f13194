package consumer

import (
	"sync"

	"aggregator/pkg/models"
)

// Queue is an unbounded FIFO of accepted events. It has an independent
// lifetime from the drain loop: pushes are accepted whether or not anything
// is draining, and a stopped drain leaves queued items in place.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []models.Event
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Push(ev models.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop removes the oldest queued event, blocking until one is available or
// stopped reports true. Wake must be called after the stop condition changes
// so a blocked Pop re-checks it.
func (q *Queue) Pop(stopped func() bool) (models.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if stopped() {
			return models.Event{}, false
		}
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			return ev, true
		}
		q.cond.Wait()
	}
}

// Wake unblocks every waiter so it can observe a stop request. The lock is
// held across the Broadcast: Pop holds it from its stop check until it parks
// in Wait, so a Broadcast issued under the lock cannot slip into that window
// and leave a waiter parked with no further wakeup.
func (q *Queue) Wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
