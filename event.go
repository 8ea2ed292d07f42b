package taskflow

import (
	"sync"
	"time"
)

// Event is a manual-reset synchronization flag. Signaling wakes every
// waiter and fires any registered continuations; the flag stays set until
// [Event.Clear] is called.
//
// The zero value is not usable; construct with [NewEvent].
type Event struct {
	ch        chan struct{} // closed while set; replaced on Clear
	mu        sync.Mutex
	set       bool
	autoClear bool
}

// NewEvent creates a new, unsignaled Event.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// AutoClearEvent is an [Event] that is cleared whenever a wait observes
// it signaled, so each successful wait consumes one signal. This gives
// one-shot semantics suitable for producer/consumer notification.
type AutoClearEvent struct {
	Event
}

// NewAutoClearEvent creates a new, unsignaled AutoClearEvent.
func NewAutoClearEvent() *AutoClearEvent {
	e := &AutoClearEvent{}
	e.ch = make(chan struct{})
	e.autoClear = true
	return e
}

// IsSignaled reports whether the event flag is currently set.
func (e *Event) IsSignaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Signal sets the event flag and fires any satisfied continuations.
// Signaling an already-set event re-notifies continuations (each still
// fires at most once) but is otherwise a no-op.
func (e *Event) Signal() {
	e.mu.Lock()
	if !e.set {
		e.set = true
		close(e.ch)
	}
	e.mu.Unlock()
	continuations.notify(e)
}

// Clear resets the event flag.
func (e *Event) Clear() {
	e.mu.Lock()
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
	e.mu.Unlock()
}

// signaled returns the channel that is closed while the event is set.
// Waiters must re-check the flag after waking: the channel may belong to
// a signal that another waiter has already consumed.
func (e *Event) signaled() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

// tryConsume returns true if the flag is set, clearing it first when the
// event is auto-clearing.
func (e *Event) tryConsume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		return false
	}
	if e.autoClear {
		e.set = false
		e.ch = make(chan struct{})
	}
	return true
}

// consumeAfterWait applies the auto-clear post-wait hook without
// reporting the flag state. Called by the continuation registry when a
// fired continuation has observed this event.
func (e *Event) consumeAfterWait() {
	e.mu.Lock()
	if e.autoClear && e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
	e.mu.Unlock()
}

// Wait blocks until the event is signaled, the timeout elapses, or the
// interrupt fires. It returns true if the event was observed signaled,
// false on timeout, and a non-nil error if the interrupt fired first (or
// the timeout was negative).
//
// Waits longer than a small threshold inform the current scheduler that
// the worker is suspending, so a replacement worker can keep the pool's
// useful parallelism at its configured ceiling.
func (e *Event) Wait(timeout time.Duration, interrupt *Interrupt) (bool, error) {
	if timeout < 0 {
		return false, ErrNegativeTimeout
	}
	if err := interrupt.Err(); err != nil {
		return false, err
	}
	start := time.Now()
	var resume func()
	defer func() {
		if resume != nil {
			resume()
		}
	}()
	for {
		if e.tryConsume() {
			return true, nil
		}
		ch := e.signaled()
		rem := remainingTimeout(timeout, start)
		if rem == 0 {
			return false, nil
		}
		window := rem
		if resume == nil && window > suspendAfter {
			window = suspendAfter
		}
		fired, err := waitChan(ch, window, interrupt)
		if err != nil {
			return false, err
		}
		if !fired && resume == nil && remainingTimeout(timeout, start) > 0 {
			resume = Current().Suspend()
		}
	}
}

// waitChan blocks on ch for up to timeout, aborting early if the
// interrupt fires. A nil interrupt never fires.
func waitChan(ch <-chan struct{}, timeout time.Duration, interrupt *Interrupt) (bool, error) {
	intCh := interrupt.signaledChan()
	if timeout == Forever {
		select {
		case <-ch:
			return true, nil
		case <-intCh:
			return false, interrupt.Err()
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true, nil
	case <-t.C:
		return false, nil
	case <-intCh:
		return false, interrupt.Err()
	}
}

// WaitAny blocks until at least one of the events is signaled. It builds
// a composite event, gated by an at-most-once ANY continuation over the
// inputs, and waits on that. Returns true if the gate fired, false on
// timeout, and an error if the interrupt fired first.
func WaitAny(events []*Event, timeout time.Duration, interrupt *Interrupt) (bool, error) {
	return waitComposite(ContinueWhenAny, events, timeout, interrupt)
}

// WaitAll blocks until every one of the events is signaled, with the
// same contract as [WaitAny].
func WaitAll(events []*Event, timeout time.Duration, interrupt *Interrupt) (bool, error) {
	return waitComposite(ContinueWhenAll, events, timeout, interrupt)
}

func waitComposite(when ContinueWhen, events []*Event, timeout time.Duration, interrupt *Interrupt) (bool, error) {
	composite := NewEvent()
	c := &eventContinuation{
		gate:   gate{when: when, events: events},
		target: composite,
	}
	continuations.add(c)
	fired, err := composite.Wait(timeout, interrupt)
	if !fired {
		continuations.remove(c)
	}
	return fired, err
}
