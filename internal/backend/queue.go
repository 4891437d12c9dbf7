package backend

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push after Close.
var ErrQueueClosed = errors.New("device queue closed")

// Queue runs jobs one at a time, in the order they were pushed, on its own
// goroutine. Devices use it to call completion callbacks in submission order.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

// NewQueue starts a queue goroutine.
func NewQueue() *Queue {
	q := &Queue{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

// Push appends job to the queue and returns immediately.
func (q *Queue) Push(job func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, job)
	q.signal()
	return nil
}

// Len returns the number of jobs not yet started.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting jobs, waits for the queued ones to finish and stops
// the goroutine. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	q.signal()
	q.mu.Unlock()

	<-q.stopped
}

// signal wakes the goroutine. Caller holds mu.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.stopped)

	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return
				}
				break
			}
			job := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()

			job()
		}
	}
}
