package queue

import "sync"

// Queue is a thread-safe FIFO that grows on demand.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int

	// ready is closed (and replaced) every time an item arrives, so any
	// number of waiters can select on it.
	ready chan struct{}

	// Stats
	totalPushed  int64
	totalPopped  int64
	totalCleared int64
	resizeCount  int
}

// New creates a queue with the given initial capacity.
func New[T any](initialCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Queue[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		ready:    make(chan struct{}),
	}
}

// Push appends an item.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalPushed++

	q.signal()
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

// Ready returns a channel that is closed the next time an item is pushed.
func (q *Queue[T]) Ready() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Clear drops every queued item and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	var zero T
	for i := 0; i < q.count; i++ {
		q.buf[(q.head+i)%q.capacity] = zero
	}
	q.head = 0
	q.tail = 0
	q.count = 0
	q.totalCleared += int64(n)
	return n
}

// Stats contains queue statistics.
type Stats struct {
	Count        int
	Capacity     int
	TotalPushed  int64
	TotalPopped  int64
	TotalCleared int64
	ResizeCount  int
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:        q.count,
		Capacity:     q.capacity,
		TotalPushed:  q.totalPushed,
		TotalPopped:  q.totalPopped,
		TotalCleared: q.totalCleared,
		ResizeCount:  q.resizeCount,
	}
}

// pop must be called with the lock held.
func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}

	item := q.buf[q.head]
	q.buf[q.head] = zero // clear reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalPopped++
	return item, true
}

// signal wakes all current waiters. Must be called with the lock held.
func (q *Queue[T]) signal() {
	close(q.ready)
	q.ready = make(chan struct{})
}

// grow doubles the capacity. Must be called with the lock held.
func (q *Queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizeCount++
}
