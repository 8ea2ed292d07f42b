package parallel

import (
	"errors"
	"sync"
	"testing"

	taskflow "github.com/joeycumines/go-taskflow"
)

func TestParallelContextStack(t *testing.T) {
	root := CurrentContext()
	if !root.IsRoot() {
		t.Fatal(`expected the root context outside any Enter`)
	}

	outer := NewParallelContext(2, nil, nil).Enter()
	if CurrentContext() != outer {
		t.Fatal(`expected the entered context to be current`)
	}

	inner := NewParallelContext(3, nil, nil).Enter()
	if CurrentContext() != inner {
		t.Fatal(`expected the innermost context to be current`)
	}

	if err := inner.Exit(); err != nil {
		t.Fatalf(`exit inner: %v`, err)
	}
	if CurrentContext() != outer {
		t.Fatal(`expected the outer context after exiting the inner`)
	}
	if err := outer.Exit(); err != nil {
		t.Fatalf(`exit outer: %v`, err)
	}
	if !CurrentContext().IsRoot() {
		t.Fatal(`expected the root context after exiting all`)
	}
}

func TestParallelContextMisnestedExit(t *testing.T) {
	outer := NewParallelContext(2, nil, nil).Enter()
	inner := NewParallelContext(2, nil, nil).Enter()

	if err := outer.Exit(); !errors.Is(err, ErrContextMisnested) {
		t.Fatalf(`expected ErrContextMisnested, got %v`, err)
	}
	if err := inner.Exit(); err != nil {
		t.Fatalf(`exit inner: %v`, err)
	}
	if err := outer.Exit(); err != nil {
		t.Fatalf(`exit outer: %v`, err)
	}
}

func TestParallelContextIsGoroutineLocal(t *testing.T) {
	pc := NewParallelContext(2, nil, nil).Enter()
	defer func() { _ = pc.Exit() }()

	var other *ParallelContext
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		other = CurrentContext()
	}()
	wg.Wait()

	if other == pc {
		t.Fatal(`expected contexts to be goroutine-local`)
	}
	if !other.IsRoot() {
		t.Fatal(`expected the other goroutine to see the root context`)
	}
}

func TestParallelContextExitSignalsInterrupt(t *testing.T) {
	pc := NewParallelContext(2, nil, nil).Enter()
	token := pc.Interrupt()
	if err := pc.Exit(); err != nil {
		t.Fatalf(`exit: %v`, err)
	}
	if !token.IsSignaled() {
		t.Fatal(`expected exit to signal the context interrupt`)
	}
}

func TestParallelContextInterruptParent(t *testing.T) {
	sig := taskflow.NewInterruptSignal()
	pc := NewParallelContext(2, sig.Interrupt(), nil)

	if !sig.Interrupt().PropagatesTo(pc.Interrupt()) {
		t.Fatal(`expected the parent interrupt to propagate into the context`)
	}
	sig.Signal()
	if !pc.Interrupt().IsSignaled() {
		t.Fatal(`expected the context interrupt to be signaled via the parent`)
	}
}

func TestParallelContextValidation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal(`expected a panic for parallelism < 1`)
		}
	}()
	NewParallelContext(0, nil, nil)
}
