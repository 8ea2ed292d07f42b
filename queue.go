package taskflow

import "time"

// Queue is an unbounded FIFO with interrupt-aware blocking dequeue. It
// is the transport under both the scheduler work queue and the parallel
// package's producer/consumer queue.
type Queue[T any] struct {
	lock  *Lock
	event *AutoClearEvent
	head  *queueNode[T] // most recently enqueued
	tail  *queueNode[T] // next to dequeue
}

type queueNode[T any] struct {
	previous *queueNode[T] // toward head
	next     *queueNode[T] // toward tail
	value    T
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{lock: NewLock(), event: NewAutoClearEvent()}
}

// Enqueue appends item at the back of the queue.
func (q *Queue[T]) Enqueue(item T) {
	_, _ = q.lock.Acquire(Forever, nil)
	node := &queueNode[T]{value: item, next: q.head}
	if q.head != nil {
		q.head.previous = node
	}
	q.head = node
	if q.tail == nil {
		q.tail = q.head
	}
	_ = q.lock.Release()
	q.event.Signal()
}

// Requeue inserts item at the front of the queue, so it is dequeued
// next.
func (q *Queue[T]) Requeue(item T) {
	_, _ = q.lock.Acquire(Forever, nil)
	node := &queueNode[T]{value: item, previous: q.tail}
	if q.tail != nil {
		q.tail.next = node
	}
	q.tail = node
	if q.head == nil {
		q.head = q.tail
	}
	_ = q.lock.Release()
	q.event.Signal()
}

// TryDequeue removes and returns the item at the front of the queue.
// It reports false both when the queue is empty and when the internal
// lock could not be acquired within timeout.
func (q *Queue[T]) TryDequeue(timeout time.Duration, interrupt *Interrupt) (T, bool, error) {
	var zero T
	ok, err := q.lock.Acquire(timeout, interrupt)
	if err != nil || !ok {
		return zero, false, err
	}
	defer func() { _ = q.lock.Release() }()
	if q.tail == nil {
		return zero, false, nil
	}
	node := q.tail
	if node.previous != nil {
		q.tail = node.previous
		q.tail.next = nil
	} else {
		q.tail = nil
		q.head = nil
	}
	value := node.value
	node.previous = nil
	node.next = nil
	node.value = zero
	return value, true, nil
}

// Dequeue removes and returns the item at the front of the queue,
// blocking until an item is available. It returns false on timeout and a
// non-nil error if the interrupt fired.
func (q *Queue[T]) Dequeue(timeout time.Duration, interrupt *Interrupt) (T, bool, error) {
	var zero T
	if timeout < 0 {
		return zero, false, ErrNegativeTimeout
	}
	start := time.Now()
	for {
		v, ok, err := q.TryDequeue(remainingTimeout(timeout, start), interrupt)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return v, true, nil
		}
		fired, err := q.event.Wait(remainingTimeout(timeout, start), interrupt)
		if err != nil {
			return zero, false, err
		}
		if !fired {
			return zero, false, nil
		}
	}
}
