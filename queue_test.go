package taskflow

import (
	"errors"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := range 5 {
		q.Enqueue(i)
	}
	for i := range 5 {
		v, ok, err := q.TryDequeue(0, nil)
		if err != nil || !ok {
			t.Fatalf(`dequeue %d: %v %v`, i, ok, err)
		}
		if v != i {
			t.Fatalf(`expected %d, got %d`, i, v)
		}
	}
	if _, ok, _ := q.TryDequeue(0, nil); ok {
		t.Fatal(`expected empty queue`)
	}
}

func TestQueueRequeue(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue(`second`)
	q.Requeue(`first`)
	v, ok, _ := q.TryDequeue(0, nil)
	if !ok || v != `first` {
		t.Fatalf(`expected requeued item first, got %q %v`, v, ok)
	}
	v, ok, _ = q.TryDequeue(0, nil)
	if !ok || v != `second` {
		t.Fatalf(`expected "second", got %q %v`, v, ok)
	}
}

func TestQueueBlockingDequeue(t *testing.T) {
	q := NewQueue[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(7)
	}()
	v, ok, err := q.Dequeue(time.Second, nil)
	if err != nil || !ok {
		t.Fatalf(`dequeue: %v %v`, ok, err)
	}
	if v != 7 {
		t.Fatalf(`expected 7, got %d`, v)
	}
}

func TestQueueDequeueTimeout(t *testing.T) {
	q := NewQueue[int]()
	start := time.Now()
	_, ok, err := q.Dequeue(30*time.Millisecond, nil)
	if err != nil || ok {
		t.Fatalf(`expected timeout, got %v %v`, ok, err)
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal(`dequeue returned before the timeout`)
	}
}

func TestQueueDequeueInterrupt(t *testing.T) {
	q := NewQueue[int]()
	sig := NewInterruptSignal()
	go func() {
		time.Sleep(10 * time.Millisecond)
		sig.Signal()
	}()
	_, _, err := q.Dequeue(time.Second, sig.Interrupt())
	var ie *InterruptError
	if !errors.As(err, &ie) {
		t.Fatalf(`expected InterruptError, got %v`, err)
	}
}

func TestQueueNegativeTimeout(t *testing.T) {
	q := NewQueue[int]()
	if _, _, err := q.Dequeue(-1, nil); !errors.Is(err, ErrNegativeTimeout) {
		t.Fatalf(`expected ErrNegativeTimeout, got %v`, err)
	}
}
