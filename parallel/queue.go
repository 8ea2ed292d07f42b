package parallel

import (
	"errors"
	"sync"
	"time"

	taskflow "github.com/joeycumines/go-taskflow"
)

// Iterable is anything that can produce a [QueueIterator]: a
// [ProducerConsumerQueue], a QueueIterator itself, or a slice wrapped
// with [Items].
type Iterable[T any] interface {
	Iterator() *QueueIterator[T]
}

// Items wraps a fixed set of items as an [Iterable]. The backing queue
// is created pre-completed, so consumers drain the items and then see
// the end of the stream.
func Items[T any](items ...T) Iterable[T] {
	return sliceIterable[T](items)
}

type sliceIterable[T any] []T

func (s sliceIterable[T]) Iterator() *QueueIterator[T] {
	return Of([]T(s)...).Iterator()
}

func (s sliceIterable[T]) size() int { return len(s) }

// sized is implemented by iterables with a known item count, letting
// ForEach clamp its worker count.
type sized interface {
	size() int
}

// ProducerConsumerQueue is a thread-safe FIFO connecting producers to
// consumers, with three monotonic flags: complete, failed, and a stored
// failure. Producers Put items and finally Complete (or Fail); consumers
// Take items, or iterate via [ProducerConsumerQueue.Iterator].
//
// A queue constructed by [Feed] is async-linked to an upstream iterator:
// an internal feeder task copies the upstream in, and direct mutation is
// rejected with [ErrQueueAsyncLinked].
type ProducerConsumerQueue[T any] struct {
	queue   *taskflow.Queue[T]
	notify  *taskflow.AutoClearEvent
	failure error
	mu      sync.Mutex
	state   queueState
	async   bool
}

type queueState int

const (
	queueOpen queueState = iota
	queueComplete
	queueFailed
)

// NewProducerConsumerQueue creates an empty, open queue.
func NewProducerConsumerQueue[T any]() *ProducerConsumerQueue[T] {
	return &ProducerConsumerQueue[T]{
		queue:  taskflow.NewQueue[T](),
		notify: taskflow.NewAutoClearEvent(),
	}
}

// Of creates a queue pre-filled with items and already completed.
func Of[T any](items ...T) *ProducerConsumerQueue[T] {
	q := NewProducerConsumerQueue[T]()
	for _, item := range items {
		q.queue.Enqueue(item)
	}
	q.state = queueComplete
	q.notify.Signal()
	return q
}

// Feed creates a queue fed asynchronously from src by an internal
// feeder task on the current scheduler. The queue is async-linked:
// direct producer calls fail with [ErrQueueAsyncLinked]. When the
// upstream ends the queue completes; if the upstream fails or is
// canceled, the failure is carried over.
func Feed[T any](src Iterable[T]) *ProducerConsumerQueue[T] {
	q := NewProducerConsumerQueue[T]()
	q.async = true
	it := src.Iterator()
	feeder := taskflow.Plan(func(t *taskflow.Task) (any, error) {
		for {
			item, ok, err := it.Next(taskflow.Forever, t.Interrupt())
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
			q.queue.Enqueue(item)
			q.notify.Signal()
		}
	})
	feeder.ContinueWith(taskflow.ContinuationDefault, func(_, antecedent *taskflow.Task) (any, error) {
		q.mu.Lock()
		if err := antecedent.Exception(); err != nil && q.state == queueOpen {
			q.failure = err
			q.state = queueFailed
		} else if q.state == queueOpen {
			q.state = queueComplete
		}
		q.mu.Unlock()
		q.notify.Signal()
		return nil, nil
	})
	if err := feeder.Schedule(nil); err != nil {
		q.mu.Lock()
		q.failure = err
		q.state = queueFailed
		q.mu.Unlock()
		q.notify.Signal()
	}
	return q
}

// IsComplete reports whether the queue has been completed (including by
// failure).
func (q *ProducerConsumerQueue[T]) IsComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state != queueOpen
}

// IsFailed reports whether the queue has been failed.
func (q *ProducerConsumerQueue[T]) IsFailed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == queueFailed
}

// IsAsyncLinked reports whether the queue is fed from an upstream
// iterator.
func (q *ProducerConsumerQueue[T]) IsAsyncLinked() bool { return q.async }

// Failure returns the stored failure, or nil.
func (q *ProducerConsumerQueue[T]) Failure() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.failure
}

func (q *ProducerConsumerQueue[T]) checkMutable() error {
	if q.async {
		return ErrQueueAsyncLinked
	}
	if q.state != queueOpen {
		return ErrQueueCompleted
	}
	return nil
}

// Put adds one item.
func (q *ProducerConsumerQueue[T]) Put(item T) error {
	q.mu.Lock()
	if err := q.checkMutable(); err != nil {
		q.mu.Unlock()
		return err
	}
	q.mu.Unlock()
	q.queue.Enqueue(item)
	q.notify.Signal()
	return nil
}

// PutMany adds all the items, signaling consumers after each one.
func (q *ProducerConsumerQueue[T]) PutMany(items []T) error {
	for _, item := range items {
		if err := q.Put(item); err != nil {
			return err
		}
	}
	return nil
}

// PutManyAsync adds the items from a task on the current scheduler,
// returning the task.
func (q *ProducerConsumerQueue[T]) PutManyAsync(items []T) (*taskflow.Task, error) {
	return taskflow.Run(func(*taskflow.Task) (any, error) {
		return nil, q.PutMany(items)
	})
}

// Complete marks the queue completed. Completion is monotonic: a second
// Complete, or any Put afterwards, fails with [ErrQueueCompleted].
func (q *ProducerConsumerQueue[T]) Complete() error {
	q.mu.Lock()
	if err := q.checkMutable(); err != nil {
		q.mu.Unlock()
		return err
	}
	q.state = queueComplete
	q.mu.Unlock()
	q.notify.Signal()
	return nil
}

// Fail marks the queue failed with err; pending and subsequent takes
// return it. Failing an already-complete queue is an error; use
// [ProducerConsumerQueue.FailIfNotComplete] for the idempotent variant.
func (q *ProducerConsumerQueue[T]) Fail(err error) error {
	q.mu.Lock()
	if cerr := q.checkMutable(); cerr != nil {
		q.mu.Unlock()
		return cerr
	}
	q.failure = err
	q.state = queueFailed
	q.mu.Unlock()
	q.notify.Signal()
	return nil
}

// FailIfNotComplete marks the queue failed unless it has already been
// completed or failed, in which case it is a no-op. Only the first
// failure is stored.
func (q *ProducerConsumerQueue[T]) FailIfNotComplete(err error) error {
	q.mu.Lock()
	if q.async {
		q.mu.Unlock()
		return ErrQueueAsyncLinked
	}
	if q.state != queueOpen {
		q.mu.Unlock()
		return nil
	}
	q.failure = err
	q.state = queueFailed
	q.mu.Unlock()
	q.notify.Signal()
	return nil
}

// Take removes and returns the next item, blocking up to timeout.
//
// Returns (item, true, nil) on success; (zero, false, nil) once the
// queue is complete and drained; and (zero, false, err) when the queue
// failed (the stored failure), the interrupt fired, or the wait timed
// out ([taskflow.ErrTimeout]). A completed queue still yields the items
// enqueued before completion: one extra drain pass runs after completion
// is observed.
func (q *ProducerConsumerQueue[T]) Take(timeout time.Duration, interrupt *taskflow.Interrupt) (T, bool, error) {
	var zero T
	if timeout < 0 {
		return zero, false, taskflow.ErrNegativeTimeout
	}
	if err := interrupt.Err(); err != nil {
		return zero, false, err
	}
	start := time.Now()
	wasEmpty := false
	for {
		q.mu.Lock()
		state, failure := q.state, q.failure
		q.mu.Unlock()
		if state == queueFailed {
			return zero, false, failure
		}

		// The inner lock is held only for pointer swaps, so waiting for
		// it (rather than conflating contention with emptiness) is what
		// keeps the post-completion drain exact.
		item, ok, err := q.queue.TryDequeue(taskflow.Forever, interrupt)
		if err != nil {
			return zero, false, err
		}
		if ok {
			return item, true, nil
		}

		if state == queueComplete {
			// Completion may have raced a final put on another
			// goroutine; look one more time before reporting the end.
			if !wasEmpty {
				wasEmpty = true
				continue
			}
			return zero, false, nil
		}

		rem := remainingTakeTimeout(timeout, start)
		if rem == 0 {
			return zero, false, taskflow.ErrTimeout
		}
		fired, err := q.notify.Wait(rem, interrupt)
		if err != nil {
			return zero, false, err
		}
		if !fired {
			return zero, false, taskflow.ErrTimeout
		}
	}
}

func remainingTakeTimeout(timeout time.Duration, start time.Time) time.Duration {
	if timeout == taskflow.Forever {
		return taskflow.Forever
	}
	rem := timeout - time.Since(start)
	if rem < 0 {
		return 0
	}
	return rem
}

// TryTake is [ProducerConsumerQueue.Take] with timeouts and the end of
// the queue folded into the ok result; the error reports only failure or
// interruption.
func (q *ProducerConsumerQueue[T]) TryTake(timeout time.Duration, interrupt *taskflow.Interrupt) (T, bool, error) {
	item, ok, err := q.Take(timeout, interrupt)
	if errors.Is(err, taskflow.ErrTimeout) {
		var zero T
		return zero, false, nil
	}
	return item, ok, err
}

// Iterator returns the standard consumer view of the queue. Iterators
// are stateless over the shared queue, so any number of consumer tasks
// may compete over one iterator (or over separate iterators; they are
// equivalent).
func (q *ProducerConsumerQueue[T]) Iterator() *QueueIterator[T] {
	return &QueueIterator[T]{queue: q}
}

// QueueIterator is a blocking, interrupt-aware consumer of a
// [ProducerConsumerQueue], safely sharable among competing consumers.
type QueueIterator[T any] struct {
	queue *ProducerConsumerQueue[T]
}

// Iterator returns the iterator itself, so iterators compose as
// [Iterable] inputs.
func (it *QueueIterator[T]) Iterator() *QueueIterator[T] { return it }

// Next takes the next item, with the [ProducerConsumerQueue.Take]
// contract: ok is false with a nil error once the stream is complete and
// drained.
func (it *QueueIterator[T]) Next(timeout time.Duration, interrupt *taskflow.Interrupt) (T, bool, error) {
	return it.queue.Take(timeout, interrupt)
}

// Drain consumes and discards the remaining items, returning the error
// that ended iteration, if any.
func (it *QueueIterator[T]) Drain(interrupt *taskflow.Interrupt) error {
	for {
		_, ok, err := it.Next(taskflow.Forever, interrupt)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// Collect consumes the remaining items into a slice.
func (it *QueueIterator[T]) Collect(interrupt *taskflow.Interrupt) ([]T, error) {
	var out []T
	for {
		item, ok, err := it.Next(taskflow.Forever, interrupt)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}
