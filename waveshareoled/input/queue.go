package input

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Queue.Wait after Close without a cause.
var ErrQueueClosed = errors.New("input: line queue closed")

// Queue is a Waiter fed from interrupt callbacks. Push never blocks: when
// the queue is full the edge is dropped.
type Queue struct {
	lines chan int
	done  chan struct{}
	once  sync.Once
	err   error
}

// NewQueue returns a Queue buffering up to size edges.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 32
	}
	return &Queue{
		lines: make(chan int, size),
		done:  make(chan struct{}),
	}
}

// Push records that line fired. It reports false if the edge was dropped.
func (q *Queue) Push(line int) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.lines <- line:
		return true
	default:
		return false
	}
}

// Wait implements Waiter.
func (q *Queue) Wait(ctx context.Context) (int, error) {
	select {
	case line := <-q.lines:
		return line, nil
	case <-q.done:
		return 0, q.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close fails every pending and future Wait with cause, or ErrQueueClosed
// if cause is nil. Only the first call has an effect.
func (q *Queue) Close(cause error) {
	q.once.Do(func() {
		if cause == nil {
			cause = ErrQueueClosed
		}
		q.err = cause
		close(q.done)
	})
}
