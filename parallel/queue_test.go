package parallel

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	taskflow "github.com/joeycumines/go-taskflow"
)

func TestQueuePutTakeConservation(t *testing.T) {
	// Property: for a completed queue that never failed, the multiset of
	// taken items equals the multiset of put items.
	q := NewProducerConsumerQueue[int]()

	const producers, perProducer = 4, 50
	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				if err := q.Put(p*perProducer + i); err != nil {
					t.Errorf(`put: %v`, err)
					return
				}
			}
		}()
	}

	var mu sync.Mutex
	var taken []int
	var cwg sync.WaitGroup
	it := q.Iterator()
	for range 3 {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				item, ok, err := it.Next(taskflow.Forever, nil)
				if err != nil {
					t.Errorf(`next: %v`, err)
					return
				}
				if !ok {
					return
				}
				mu.Lock()
				taken = append(taken, item)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	if err := q.Complete(); err != nil {
		t.Fatalf(`complete: %v`, err)
	}
	cwg.Wait()

	if len(taken) != producers*perProducer {
		t.Fatalf(`expected %d items, got %d`, producers*perProducer, len(taken))
	}
	sort.Ints(taken)
	for i, v := range taken {
		if v != i {
			t.Fatalf(`expected each item exactly once, got %v at %d`, v, i)
		}
	}
}

func TestQueueCompleteIsMonotonic(t *testing.T) {
	q := NewProducerConsumerQueue[int]()
	if err := q.Complete(); err != nil {
		t.Fatalf(`complete: %v`, err)
	}
	if err := q.Complete(); !errors.Is(err, ErrQueueCompleted) {
		t.Fatalf(`expected ErrQueueCompleted on second complete, got %v`, err)
	}
	if err := q.Put(1); !errors.Is(err, ErrQueueCompleted) {
		t.Fatalf(`expected ErrQueueCompleted on put after complete, got %v`, err)
	}
	if err := q.Fail(errors.New(`late`)); !errors.Is(err, ErrQueueCompleted) {
		t.Fatalf(`expected ErrQueueCompleted on fail after complete, got %v`, err)
	}
}

func TestQueueFailStoresFirstError(t *testing.T) {
	q := NewProducerConsumerQueue[int]()
	errFirst, errSecond := errors.New(`first`), errors.New(`second`)

	if err := q.Fail(errFirst); err != nil {
		t.Fatalf(`fail: %v`, err)
	}
	if !q.IsFailed() || !q.IsComplete() {
		t.Fatal(`expected failed queue to be complete and failed`)
	}
	if err := q.FailIfNotComplete(errSecond); err != nil {
		t.Fatalf(`expected idempotent FailIfNotComplete, got %v`, err)
	}
	if q.Failure() != errFirst {
		t.Fatal(`expected only the first error to be stored`)
	}

	if _, _, err := q.Take(0, nil); !errors.Is(err, errFirst) {
		t.Fatalf(`expected takes to raise the stored failure, got %v`, err)
	}
}

func TestQueueTakeDrainsAfterComplete(t *testing.T) {
	q := NewProducerConsumerQueue[int]()
	for i := range 3 {
		if err := q.Put(i); err != nil {
			t.Fatalf(`put: %v`, err)
		}
	}
	if err := q.Complete(); err != nil {
		t.Fatalf(`complete: %v`, err)
	}

	for i := range 3 {
		item, ok, err := q.Take(0, nil)
		if err != nil || !ok {
			t.Fatalf(`take %d: %v %v`, i, ok, err)
		}
		if item != i {
			t.Fatalf(`expected %d, got %d`, i, item)
		}
	}
	if _, ok, err := q.Take(0, nil); ok || err != nil {
		t.Fatalf(`expected end of queue, got %v %v`, ok, err)
	}
}

func TestQueueTakeTimeout(t *testing.T) {
	q := NewProducerConsumerQueue[int]()
	start := time.Now()
	_, _, err := q.Take(30*time.Millisecond, nil)
	if !errors.Is(err, taskflow.ErrTimeout) {
		t.Fatalf(`expected ErrTimeout, got %v`, err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal(`take returned before the timeout`)
	}

	if _, ok, err := q.TryTake(10*time.Millisecond, nil); ok || err != nil {
		t.Fatalf(`expected TryTake to fold the timeout, got %v %v`, ok, err)
	}
}

func TestQueueTakeInterrupt(t *testing.T) {
	q := NewProducerConsumerQueue[int]()
	sig := taskflow.NewInterruptSignal()
	go func() {
		time.Sleep(10 * time.Millisecond)
		sig.Signal()
	}()
	_, _, err := q.Take(time.Second, sig.Interrupt())
	var ie *taskflow.InterruptError
	if !errors.As(err, &ie) {
		t.Fatalf(`expected InterruptError, got %v`, err)
	}
}

func TestQueueOf(t *testing.T) {
	q := Of(1, 2, 3)
	if !q.IsComplete() || q.IsFailed() {
		t.Fatal(`expected a pre-completed, unfailed queue`)
	}
	items, err := q.Iterator().Collect(nil)
	if err != nil {
		t.Fatalf(`collect: %v`, err)
	}
	if len(items) != 3 || items[0] != 1 || items[1] != 2 || items[2] != 3 {
		t.Fatalf(`expected [1 2 3], got %v`, items)
	}
}

func TestQueueAsyncLinkedRejectsMutation(t *testing.T) {
	q := Feed(Items(1, 2, 3))

	if !q.IsAsyncLinked() {
		t.Fatal(`expected the fed queue to be async-linked`)
	}
	if err := q.Put(4); !errors.Is(err, ErrQueueAsyncLinked) {
		t.Fatalf(`expected ErrQueueAsyncLinked on put, got %v`, err)
	}
	if err := q.Complete(); !errors.Is(err, ErrQueueAsyncLinked) {
		t.Fatalf(`expected ErrQueueAsyncLinked on complete, got %v`, err)
	}
	if err := q.Fail(errors.New(`x`)); !errors.Is(err, ErrQueueAsyncLinked) {
		t.Fatalf(`expected ErrQueueAsyncLinked on fail, got %v`, err)
	}

	items, err := q.Iterator().Collect(nil)
	if err != nil {
		t.Fatalf(`collect: %v`, err)
	}
	sort.Ints(items)
	if len(items) != 3 || items[0] != 1 || items[2] != 3 {
		t.Fatalf(`expected the upstream items, got %v`, items)
	}
}

func TestQueuePutManyAsync(t *testing.T) {
	q := NewProducerConsumerQueue[int]()
	task, err := q.PutManyAsync([]int{1, 2, 3})
	if err != nil {
		t.Fatalf(`put many async: %v`, err)
	}
	if _, err := task.Result(); err != nil {
		t.Fatalf(`feeder task: %v`, err)
	}
	if err := q.Complete(); err != nil {
		t.Fatalf(`complete: %v`, err)
	}
	items, err := q.Iterator().Collect(nil)
	if err != nil || len(items) != 3 {
		t.Fatalf(`expected 3 items, got %v %v`, items, err)
	}
}
