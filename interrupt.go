package taskflow

import (
	"sync"
	"sync/atomic"
	"time"
	"weak"
)

// signalIDCounter allocates process-wide interrupt signal ids. Id zero
// is reserved for "not signaled".
var signalIDCounter atomic.Uint64

// Interrupt is a cancellation token. Tokens are created through an
// [InterruptSignal] and handed to the code that should observe
// cancellation; they cannot be signaled directly.
//
// Tokens form a directed, possibly cyclic link graph: signaling a token
// transitively signals every linked token, stamping all of them with the
// same signal id. A nil *Interrupt is a valid token that is never
// signaled.
//
// Cancellation is strictly cooperative: a signaled token never preempts
// running code; it causes the next [Interrupt.Err] check or blocking
// primitive call to abort.
type Interrupt struct {
	err      *InterruptError
	event    *Event
	linked   []weak.Pointer[Interrupt]
	mu       sync.Mutex
	signalID uint64
}

func newInterrupt() *Interrupt {
	return &Interrupt{event: NewEvent()}
}

// IsSignaled reports whether the token has been signaled.
func (i *Interrupt) IsSignaled() bool {
	if i == nil {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.signalID != 0
}

// SignalID returns the id assigned when the token was signaled, or zero
// if it has not been. Every token reached by one signal propagation
// carries the same id.
func (i *Interrupt) SignalID() uint64 {
	if i == nil {
		return 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.signalID
}

// Err returns the stored [*InterruptError] if the token has been
// signaled, and nil otherwise. The same error instance is returned on
// every call.
func (i *Interrupt) Err() error {
	if i == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.signalID == 0 {
		return nil
	}
	return i.err
}

// RaiseIfSignaled is an alias for [Interrupt.Err], matching the
// cooperative polling idiom:
//
//	if err := task.Interrupt().RaiseIfSignaled(); err != nil {
//	    return nil, err
//	}
func (i *Interrupt) RaiseIfSignaled() error { return i.Err() }

// Wait blocks until the token is signaled, the timeout elapses, or the
// given interrupt fires, with the [Event.Wait] contract.
func (i *Interrupt) Wait(timeout time.Duration, interrupt *Interrupt) (bool, error) {
	if i == nil {
		if timeout < 0 {
			return false, ErrNegativeTimeout
		}
		if err := interrupt.Err(); err != nil {
			return false, err
		}
		if timeout == 0 {
			return false, nil
		}
		return waitChan(nil, timeout, interrupt)
	}
	return i.event.Wait(timeout, interrupt)
}

// signaledChan returns a channel closed once the token is signaled, or
// nil (blocking forever in a select) for the nil token.
func (i *Interrupt) signaledChan() <-chan struct{} {
	if i == nil {
		return nil
	}
	return i.event.signaled()
}

// PropagatesTo reports whether signaling this token would signal other,
// by walking the link graph. The graph may be cyclic; traversal keeps a
// visited set keyed by token identity. The information is not available
// after the token has been signaled, as links are cleared on
// propagation.
func (i *Interrupt) PropagatesTo(other *Interrupt) bool {
	if i == nil || other == nil {
		return false
	}
	return i.propagatesTo(other, make(map[*Interrupt]bool))
}

func (i *Interrupt) propagatesTo(other *Interrupt, visited map[*Interrupt]bool) bool {
	if visited[i] {
		return false
	}
	visited[i] = true
	i.mu.Lock()
	linked := make([]weak.Pointer[Interrupt], len(i.linked))
	copy(linked, i.linked)
	i.mu.Unlock()
	for _, wp := range linked {
		child := wp.Value()
		if child == nil {
			continue
		}
		if child == other || child.propagatesTo(other, visited) {
			return true
		}
	}
	return false
}

// link records child as a propagation target. If the token is already
// signaled, link reports that instead, returning the signal id.
func (i *Interrupt) link(child *Interrupt) (signaledID uint64, linked bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.signalID != 0 {
		return i.signalID, false
	}
	i.linked = append(i.linked, weak.Make(child))
	return 0, true
}

// signal stamps the token with id, stores the cancellation error,
// signals the internal event, and propagates to every linked token that
// is still alive and unsignaled. The link set is cleared so the graph
// does not retain signaled tokens. Cycles terminate because a signaled
// token ignores further signals.
func (i *Interrupt) signal(id uint64) {
	i.mu.Lock()
	if i.signalID != 0 {
		i.mu.Unlock()
		return
	}
	i.signalID = id
	i.err = &InterruptError{interrupt: i}
	linked := i.linked
	i.linked = nil
	i.mu.Unlock()
	i.event.Signal()
	for _, wp := range linked {
		if child := wp.Value(); child != nil {
			child.signal(id)
		}
	}
}

// InterruptSignal is the owner side of an [Interrupt]: it constructs a
// fresh token linked to zero or more parents and exposes the one
// operation the token itself does not: Signal.
type InterruptSignal struct {
	interrupt *Interrupt
}

// NewInterruptSignal creates a signal owning a fresh token. The token is
// linked as a propagation target of every non-nil parent, so signaling
// any parent also signals it. If a parent is already signaled the new
// token is signaled immediately with the parent's id and no links are
// recorded.
func NewInterruptSignal(parents ...*Interrupt) *InterruptSignal {
	child := newInterrupt()
	for _, p := range parents {
		if id := p.SignalID(); id != 0 {
			child.signal(id)
			return &InterruptSignal{interrupt: child}
		}
	}
	for _, p := range parents {
		if p == nil {
			continue
		}
		if id, linked := p.link(child); !linked {
			child.signal(id)
			break
		}
	}
	return &InterruptSignal{interrupt: child}
}

// Interrupt returns the owned token.
func (s *InterruptSignal) Interrupt() *Interrupt { return s.interrupt }

// IsSignaled reports whether the owned token has been signaled.
func (s *InterruptSignal) IsSignaled() bool { return s.interrupt.IsSignaled() }

// Signal signals the owned token with a fresh id, propagating
// transitively through the link graph. Signaling more than once is a
// no-op.
func (s *InterruptSignal) Signal() {
	s.interrupt.signal(signalIDCounter.Add(1))
}
