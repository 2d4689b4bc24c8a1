package router

import (
	"sync"
)

// growThreshold is the fill percentage at which the ring doubles.
const growThreshold = 70

// GrowableBuffer is an unbounded FIFO ring that never blocks senders. It doubles its
// capacity when it reaches growThreshold percent full, so producers on latency-sensitive
// goroutines (subscription handlers) can hand off work without waiting for consumers.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // next read
	count  int
	closed bool

	enqueued int64
	dequeued int64
	resizes  int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count    int
	Capacity int
	Enqueued int64
	Dequeued int64
	Resizes  int
}

// NewGrowableBuffer creates a buffer with the given initial capacity (minimum 1).
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	b := &GrowableBuffer[T]{
		ring: make([]T, max(initialCapacity, 1)),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	if b.count+1 >= max(len(b.ring)*growThreshold/100, 1) {
		b.grow()
	}

	b.ring[(b.head+b.count)%len(b.ring)] = item
	b.count++
	b.enqueued++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available or the buffer is closed and empty.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	return b.pop()
}

// ReceiveBatch blocks until at least one item is available, then returns up to limit
// items (all of them when limit <= 0). It returns false once the buffer is closed and
// drained.
func (b *GrowableBuffer[T]) ReceiveBatch(limit int) ([]T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		return nil, false
	}
	return b.drain(limit), true
}

// TryReceive returns the oldest item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pop()
}

// DrainTo removes up to limit items (all when limit <= 0) without blocking.
func (b *GrowableBuffer[T]) DrainTo(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	return b.drain(limit)
}

// Close stops accepting items. Receivers still get what is buffered, then the closed
// signal.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (b *GrowableBuffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:    b.count,
		Capacity: len(b.ring),
		Enqueued: b.enqueued,
		Dequeued: b.dequeued,
		Resizes:  b.resizes,
	}
}

// pop removes the head item. Lock must be held.
func (b *GrowableBuffer[T]) pop() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	item := b.ring[b.head]
	b.ring[b.head] = zero // release reference
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.dequeued++
	return item, true
}

// drain pops up to limit items. Lock must be held.
func (b *GrowableBuffer[T]) drain(limit int) []T {
	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, _ := b.pop()
		out = append(out, item)
	}
	return out
}

// grow doubles the ring and unwraps it. Lock must be held.
func (b *GrowableBuffer[T]) grow() {
	next := make([]T, len(b.ring)*2)
	for i := 0; i < b.count; i++ {
		next[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	b.ring = next
	b.head = 0
	b.resizes++
}
