package delivery

import (
	"context"
	"sync"
)

// Outbox is a bounded FIFO of encoded frames for one connection. Any
// goroutine may Enqueue; only the connection's writer drains it. Enqueue
// never blocks; EnqueueWait waits for room up to its context.
type Outbox struct {
	mu      sync.Mutex
	ring    [][]byte
	head    int
	n       int
	policy  Policy
	closed  bool
	overrun bool
	dropped uint64

	notify chan struct{}
	room   chan struct{}
	done   chan struct{}
	onDrop func(Policy)
}

// NewOutbox creates an outbox holding at most size frames. onDrop, if not
// nil, is called for every dropped frame.
func NewOutbox(size int, policy Policy, onDrop func(Policy)) *Outbox {
	if size < 1 {
		size = 1
	}
	if policy == "" {
		policy = PolicyDropOldest
	}
	return &Outbox{
		ring:   make([][]byte, size),
		policy: policy,
		notify: make(chan struct{}, 1),
		room:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
}

// Enqueue appends frame. It returns nil, ErrEvicted, ErrDropped,
// ErrOverflow or ErrClosed.
func (o *Outbox) Enqueue(frame []byte) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}

	var err error
	if o.n == len(o.ring) {
		switch o.policy {
		case PolicyDropNew:
			o.dropped++
			o.mu.Unlock()
			o.drop()
			return ErrDropped
		case PolicyDisconnect:
			o.dropped++
			o.overrun = true
			o.closeLocked()
			o.mu.Unlock()
			o.drop()
			return ErrOverflow
		default:
			o.ring[o.head] = nil
			o.head = (o.head + 1) % len(o.ring)
			o.n--
			o.dropped++
			err = ErrEvicted
		}
	}

	o.ring[(o.head+o.n)%len(o.ring)] = frame
	o.n++
	o.mu.Unlock()

	if err != nil {
		o.drop()
	}
	o.signal()
	return err
}

func (o *Outbox) signal() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// EnqueueWait appends frame, waiting while the outbox is full. When ctx
// ends first the frame goes through Enqueue and the policy applies.
func (o *Outbox) EnqueueWait(ctx context.Context, frame []byte) error {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return ErrClosed
		}
		if o.n < len(o.ring) {
			o.ring[(o.head+o.n)%len(o.ring)] = frame
			o.n++
			o.mu.Unlock()
			o.signal()
			return nil
		}
		o.mu.Unlock()

		select {
		case <-o.room:
		case <-o.done:
			return ErrClosed
		case <-ctx.Done():
			return o.Enqueue(frame)
		}
	}
}

// Pop removes and returns the oldest frame without blocking.
func (o *Outbox) Pop() ([]byte, bool) {
	o.mu.Lock()
	if o.n == 0 {
		o.mu.Unlock()
		return nil, false
	}
	frame := o.ring[o.head]
	o.ring[o.head] = nil
	o.head = (o.head + 1) % len(o.ring)
	o.n--
	o.mu.Unlock()

	select {
	case o.room <- struct{}{}:
	default:
	}
	return frame, true
}

// Next blocks until a frame is available, the outbox is closed and empty,
// or ctx is done. A closed outbox still yields its queued frames, then
// ErrClosed.
func (o *Outbox) Next(ctx context.Context) ([]byte, error) {
	for {
		if frame, ok := o.Pop(); ok {
			return frame, nil
		}
		select {
		case <-o.notify:
		case <-o.done:
			if frame, ok := o.Pop(); ok {
				return frame, nil
			}
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Notify fires after an enqueue. It is coalesced: one signal may cover
// several frames.
func (o *Outbox) Notify() <-chan struct{} { return o.notify }

// Done is closed when the outbox stops accepting frames.
func (o *Outbox) Done() <-chan struct{} { return o.done }

// Close stops accepting frames. Queued frames remain available to Pop.
// Close is idempotent.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closeLocked()
	o.mu.Unlock()
}

func (o *Outbox) closeLocked() {
	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
}

// Overflowed reports whether the disconnect policy closed the outbox.
func (o *Outbox) Overflowed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overrun
}

// Len returns the number of queued frames.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}

// Dropped returns how many frames this outbox has dropped.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Policy returns the outbox's backpressure policy.
func (o *Outbox) Policy() Policy { return o.policy }

func (o *Outbox) drop() {
	if o.onDrop != nil {
		o.onDrop(o.policy)
	}
}
