package taskflow

import "sync"

// ContinueWhen selects the gate policy of a continuation over multiple
// events or tasks.
type ContinueWhen int

const (
	// ContinueWhenAll fires the continuation once every observed event
	// is signaled.
	ContinueWhenAll ContinueWhen = iota
	// ContinueWhenAny fires the continuation as soon as at least one
	// observed event is signaled.
	ContinueWhenAny
)

// ContinuationOptions is a bit-set controlling when and where a task
// continuation runs.
type ContinuationOptions int

const (
	// ContinueInline runs the continuation on the goroutine that fired
	// the gate, instead of queueing it on a scheduler. Note that this may
	// be a non-worker goroutine if user code signaled the event.
	ContinueInline ContinuationOptions = 1 << iota
	// OnCompletedSuccessfully runs the continuation when the antecedent
	// completed successfully.
	OnCompletedSuccessfully
	// OnFailed runs the continuation when the antecedent failed.
	OnFailed
	// OnCanceled runs the continuation when the antecedent was canceled.
	OnCanceled

	// ContinuationDefault runs the continuation inline for any terminal
	// state.
	ContinuationDefault = ContinueInline | OnCompletedSuccessfully | OnFailed | OnCanceled
)

// matchesState reports whether the options permit continuing after the
// given terminal state.
func (o ContinuationOptions) matchesState(s TaskState) bool {
	switch s {
	case StateCompleted:
		return o&OnCompletedSuccessfully != 0
	case StateFailed:
		return o&OnFailed != 0
	case StateCanceled:
		return o&OnCanceled != 0
	default:
		return false
	}
}

// continuation is an at-most-once gate over a set of events.
//
// tryContinue is called under the registry lock and reports whether the
// continuation is now satisfied and consumed; once it returns true it is
// removed from every observed event and fire is called exactly once,
// outside the lock.
type continuation interface {
	observed() []*Event
	tryContinue() bool
	fire()
}

// gate holds the policy, observed events, and done flag shared by all
// continuation kinds.
type gate struct {
	events []*Event
	when   ContinueWhen
	done   bool
}

func (g *gate) observed() []*Event { return g.events }

// satisfied evaluates the gate policy against the current event flags.
// Must be called under the registry lock.
func (g *gate) satisfied() bool {
	if g.done {
		return false
	}
	missing := 0
	for _, e := range g.events {
		if !e.IsSignaled() {
			missing++
		}
	}
	switch g.when {
	case ContinueWhenAll:
		return missing == 0
	default:
		return missing < len(g.events)
	}
}

// eventContinuation signals a composite event when the gate fires.
// Backs [WaitAny] and [WaitAll].
type eventContinuation struct {
	target *Event
	gate
}

func (c *eventContinuation) tryContinue() bool {
	if !c.satisfied() {
		return false
	}
	c.done = true
	return true
}

func (c *eventContinuation) fire() { c.target.Signal() }

// continuationRegistry maps events to the continuations observing them.
// An entry is removed as soon as its continuation fires; the registry
// lock is always acquired before any per-event lock.
type continuationRegistry struct {
	waiting map[*Event][]continuation
	mu      sync.Mutex
}

var continuations = &continuationRegistry{waiting: make(map[*Event][]continuation)}

// add registers c on every event it observes, then immediately notifies
// any of those events that are already signaled.
func (r *continuationRegistry) add(c continuation) {
	events := c.observed()
	r.mu.Lock()
	var signaled []*Event
	for _, e := range events {
		r.waiting[e] = append(r.waiting[e], c)
		if e.IsSignaled() {
			signaled = append(signaled, e)
		}
	}
	var fired []continuation
	for _, e := range signaled {
		fired = append(fired, r.collectLocked(e)...)
	}
	// Gates over zero events are satisfiable without any signal.
	if len(events) == 0 {
		if c.tryContinue() {
			fired = append(fired, c)
		}
	}
	r.mu.Unlock()
	dispatch(fired)
}

// notify re-evaluates every continuation observing e, firing those now
// satisfied. Satisfied continuations are collected under the lock and
// dispatched after it is released, so continuation actions never run
// under the registry lock.
func (r *continuationRegistry) notify(e *Event) {
	r.mu.Lock()
	fired := r.collectLocked(e)
	r.mu.Unlock()
	dispatch(fired)
}

// remove unregisters c from every event it observes, e.g. after a
// composite wait timed out.
func (r *continuationRegistry) remove(c continuation) {
	r.mu.Lock()
	for _, e := range c.observed() {
		r.removeFromLocked(e, c)
	}
	r.mu.Unlock()
}

// collectLocked gathers the satisfied continuations of e, removing each
// from e and from every other event it observes so no event can fire the
// same continuation twice. The auto-clear post-wait hook runs for every
// event a fired continuation observed.
func (r *continuationRegistry) collectLocked(e *Event) []continuation {
	list, ok := r.waiting[e]
	if !ok {
		return nil
	}
	var fired []continuation
	remaining := list[:0]
	for _, c := range list {
		if c.tryContinue() {
			fired = append(fired, c)
		} else {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == 0 {
		delete(r.waiting, e)
	} else {
		r.waiting[e] = remaining
	}
	for _, c := range fired {
		for _, oe := range c.observed() {
			oe.consumeAfterWait()
			if oe != e {
				r.removeFromLocked(oe, c)
			}
		}
	}
	return fired
}

func (r *continuationRegistry) removeFromLocked(e *Event, c continuation) {
	list, ok := r.waiting[e]
	if !ok {
		return
	}
	filtered := list[:0]
	for _, x := range list {
		if x != c {
			filtered = append(filtered, x)
		}
	}
	if len(filtered) == 0 {
		delete(r.waiting, e)
	} else {
		r.waiting[e] = filtered
	}
}

// pending returns the number of registered (event, continuation) pairs.
func (r *continuationRegistry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.waiting {
		n += len(list)
	}
	return n
}

func dispatch(fired []continuation) {
	for _, c := range fired {
		c.fire()
	}
}
