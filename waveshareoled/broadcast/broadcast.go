// Package broadcast is a lossy fan-out primitive: every published value is
// offered to every current receiver, each of which buffers a fixed number of
// values. A receiver that falls behind loses its oldest buffered values;
// publishing never waits for a slow receiver.
package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Subscribe after Close, and by Recv once the bus
// has been closed and the receiver has drained, or the receiver itself was
// closed.
var ErrClosed = errors.New("broadcast: closed")

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 16

// Bus fans values of type T out to receivers.
type Bus[T any] struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Receiver[T]]struct{}
	closed   bool
}

// New returns a Bus whose receivers each buffer capacity values.
func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus[T]{
		capacity: capacity,
		subs:     make(map[*Receiver[T]]struct{}),
	}
}

// Publish offers v to every current receiver. Values published before a
// receiver subscribed are never delivered to it.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for r := range b.subs {
		r.push(v)
	}
}

// Subscribe returns a new receiver that sees every value published from now
// on, until it falls behind or is closed.
func (b *Bus[T]) Subscribe() (*Receiver[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	r := &Receiver[T]{
		bus:    b,
		ring:   make([]T, b.capacity),
		notify: make(chan struct{}, 1),
	}
	b.subs[r] = struct{}{}
	return r, nil
}

// Receivers returns the number of subscribed receivers.
func (b *Bus[T]) Receivers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close shuts the producer side. Receivers drain what they hold and then
// get ErrClosed.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for r := range b.subs {
		r.shut(false)
	}
	b.subs = nil
}

// Receiver is one subscriber's view of a Bus. A Receiver is meant to be read
// by one goroutine.
type Receiver[T any] struct {
	bus    *Bus[T]
	notify chan struct{}

	mu     sync.Mutex
	ring   []T
	head   int
	n      int
	missed uint64
	closed bool
}

// Recv returns the oldest buffered value, blocking until one is published,
// the bus is closed, or ctx is done.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		r.mu.Lock()
		if r.n > 0 {
			v := r.ring[r.head]
			r.ring[r.head] = zero
			r.head = (r.head + 1) % len(r.ring)
			r.n--
			r.mu.Unlock()
			return v, nil
		}
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return zero, ErrClosed
		}

		select {
		case <-r.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Missed returns how many values were overwritten before this receiver read
// them.
func (r *Receiver[T]) Missed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.missed
}

// Close removes the receiver from its bus and discards anything buffered.
func (r *Receiver[T]) Close() {
	r.bus.mu.Lock()
	delete(r.bus.subs, r)
	r.bus.mu.Unlock()
	r.shut(true)
}

func (r *Receiver[T]) push(v T) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.n == len(r.ring) {
		r.head = (r.head + 1) % len(r.ring)
		r.n--
		r.missed++
	}
	r.ring[(r.head+r.n)%len(r.ring)] = v
	r.n++
	r.mu.Unlock()
	r.wake()
}

func (r *Receiver[T]) shut(discard bool) {
	r.mu.Lock()
	r.closed = true
	if discard {
		clear(r.ring)
		r.head, r.n = 0, 0
	}
	r.mu.Unlock()
	r.wake()
}

func (r *Receiver[T]) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}
