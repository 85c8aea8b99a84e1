package tray

import "sync"

// Queue serializes work onto the tray's event goroutine. Post never blocks;
// the event loop selects on Wake and calls Drain.
type Queue struct {
	mu   sync.Mutex
	fns  []func()
	wake chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Post appends fn and wakes the event loop. Safe from any goroutine.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) Wake() <-chan struct{} { return q.wake }

// Drain runs queued work in posting order until the queue is empty,
// including work posted by the functions it runs.
func (q *Queue) Drain() {
	for {
		q.mu.Lock()
		fns := q.fns
		q.fns = nil
		q.mu.Unlock()

		if len(fns) == 0 {
			return
		}
		for _, fn := range fns {
			fn()
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}
