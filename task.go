package taskflow

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// TaskFunc is the body of a [Task]. The task itself is passed in so the
// body can poll its interrupt, read its name, or spawn child tasks.
type TaskFunc func(t *Task) (any, error)

var taskIDs struct {
	mu   sync.Mutex
	next uint64
}

func nextTaskID() uint64 {
	taskIDs.mu.Lock()
	defer taskIDs.mu.Unlock()
	taskIDs.next++
	return taskIDs.next
}

// Task is a unit of deferred work: a target function plus a lifecycle
// state machine, a result slot, an exception slot, and a one-shot
// completion event continuations can observe.
//
// Every task owns a fresh [Interrupt] linked to the (optional) parent
// interrupt it was created with, so the task can be canceled on its own
// via [Task.Cancel], or collectively through the parent.
type Task struct {
	target    TaskFunc
	result    any
	err       error
	done      *Event
	scheduler TaskScheduler
	signal    *InterruptSignal
	interrupt *Interrupt
	parent    *Task
	name      string
	id        uint64
	mu        sync.Mutex
	state     TaskState
	lazy      bool
	inline    bool // gate tasks run on the goroutine that fires them
}

func newTask(fn TaskFunc, name string, interrupt *Interrupt, lazy bool) *Task {
	id := nextTaskID()
	if name == "" {
		name = fmt.Sprintf("task-%d", id)
	}
	signal := NewInterruptSignal(interrupt)
	return &Task{
		id:        id,
		name:      name,
		target:    fn,
		done:      NewEvent(),
		signal:    signal,
		interrupt: signal.Interrupt(),
		parent:    CurrentTask(),
		lazy:      lazy,
	}
}

// ID returns the unique task id.
func (t *Task) ID() uint64 { return t.id }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Parent returns the task that created this one, if any.
func (t *Task) Parent() *Task { return t.parent }

// Interrupt returns the task's own cancellation token.
func (t *Task) Interrupt() *Interrupt { return t.interrupt }

// IsLazy reports whether the task defers scheduling until its result is
// demanded.
func (t *Task) IsLazy() bool { return t.lazy }

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsCompleted reports whether the task reached any terminal state.
func (t *Task) IsCompleted() bool { return t.State().IsTerminal() }

// IsCompletedSuccessfully reports whether the task completed without
// error.
func (t *Task) IsCompletedSuccessfully() bool { return t.State() == StateCompleted }

// IsFailed reports whether the task failed.
func (t *Task) IsFailed() bool { return t.State() == StateFailed }

// IsCanceled reports whether the task was canceled.
func (t *Task) IsCanceled() bool { return t.State() == StateCanceled }

// IsScheduled reports whether the task is queued to run.
func (t *Task) IsScheduled() bool { return t.State() == StateScheduled }

// IsRunning reports whether the task is currently running.
func (t *Task) IsRunning() bool { return t.State() == StateRunning }

// Exception returns the stored error of a failed or canceled task, or
// nil.
func (t *Task) Exception() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// transitionLocked performs a state transition, dropping the target
// function on terminal states so captured state can be reclaimed.
// Callers hold t.mu.
func (t *Task) transitionLocked(to TaskState) error {
	if !canTransition(t.state, to) {
		return &TaskError{
			Kind:    TaskInvalidTransition,
			Message: fmt.Sprintf("task cannot transition from state %v to %v", t.state, to),
		}
	}
	t.state = to
	if to.IsTerminal() {
		t.target = nil
	}
	return nil
}

// Schedule queues the task on the given scheduler, or the current one if
// scheduler is nil.
func (t *Task) Schedule(scheduler TaskScheduler) error {
	t.mu.Lock()
	switch {
	case t.state == StateScheduled:
		t.mu.Unlock()
		return ErrTaskAlreadyScheduled
	case t.state.IsTerminal():
		t.mu.Unlock()
		return ErrTaskCompleted
	case t.state == StateRunning:
		t.mu.Unlock()
		return ErrTaskAlreadyRunning
	}
	if scheduler == nil {
		scheduler = Current()
	}
	t.scheduler = scheduler
	if err := t.transitionLocked(StateScheduled); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()
	if err := scheduler.Queue(t); err != nil {
		t.mu.Lock()
		t.state = StateNotStarted
		t.scheduler = nil
		t.mu.Unlock()
		return err
	}
	return nil
}

// RunSynchronously executes the task body on the calling goroutine.
// Normally only schedulers call this; it is exported because the
// original contract permits running an unscheduled task in place.
func (t *Task) RunSynchronously() error {
	t.mu.Lock()
	switch {
	case t.state == StateCanceled:
		t.mu.Unlock()
		return ErrTaskCanceled
	case t.state.IsTerminal():
		t.mu.Unlock()
		return ErrTaskCompleted
	case t.state == StateRunning:
		t.mu.Unlock()
		return ErrTaskAlreadyRunning
	}
	if t.scheduler != nil && t.scheduler != Current() {
		t.mu.Unlock()
		return ErrTaskWrongScheduler
	}
	if err := t.interrupt.Err(); err != nil {
		// Canceled before it could start.
		t.err = err
		_ = t.transitionLocked(StateCanceled)
		t.mu.Unlock()
		t.done.Signal()
		return nil
	}
	if t.scheduler == nil {
		t.scheduler = Current()
	}
	if err := t.transitionLocked(StateRunning); err != nil {
		t.mu.Unlock()
		return err
	}
	target := t.target
	t.mu.Unlock()

	result, err := runTarget(target, t)

	t.mu.Lock()
	if err == nil {
		t.result = result
		_ = t.transitionLocked(StateCompleted)
	} else {
		t.err = err
		var ie *InterruptError
		if errors.As(err, &ie) &&
			ie.Interrupt().SignalID() != 0 &&
			ie.Interrupt().SignalID() == t.interrupt.SignalID() {
			_ = t.transitionLocked(StateCanceled)
		} else {
			_ = t.transitionLocked(StateFailed)
		}
	}
	t.mu.Unlock()
	t.done.Signal()
	return nil
}

func runTarget(fn TaskFunc, t *Task) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	if fn == nil {
		return nil, nil
	}
	return fn(t)
}

// Cancel signals the task's own interrupt. A task that has not been
// scheduled yet transitions directly to Canceled; otherwise the running
// body is expected to observe the interrupt cooperatively.
func (t *Task) Cancel() {
	t.signal.Signal()
	t.mu.Lock()
	if t.state == StateNotStarted {
		t.err = t.interrupt.Err()
		_ = t.transitionLocked(StateCanceled)
		t.mu.Unlock()
		t.done.Signal()
		return
	}
	t.mu.Unlock()
}

// cancelAndNotify forces a gated continuation task into the Canceled
// state; used when the antecedents' terminal states do not match the
// continuation's options.
func (t *Task) cancelAndNotify() error {
	t.mu.Lock()
	if t.state.IsTerminal() {
		t.mu.Unlock()
		return ErrTaskCompleted
	}
	t.err = NewInterruptError(t.interrupt)
	if err := t.transitionLocked(StateCanceled); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()
	t.done.Signal()
	return nil
}

// Wait blocks until the task terminates, the timeout elapses, or the
// interrupt fires. It returns true if the task terminated, and re-raises
// the task's stored error (failure or cancellation), if any.
func (t *Task) Wait(timeout time.Duration, interrupt *Interrupt) (bool, error) {
	fired, err := t.done.Wait(timeout, interrupt)
	if err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return fired, t.err
	}
	return fired, nil
}

// Result blocks until the task terminates and returns its result, or
// re-raises the stored error. Accessing the result of a lazy,
// not-yet-started task prioritises it on the current scheduler;
// demanding the result of any other unscheduled task returns
// [ErrTaskNotScheduled].
func (t *Task) Result() (any, error) {
	t.mu.Lock()
	if t.state == StateNotStarted {
		lazy := t.lazy
		t.mu.Unlock()
		if !lazy {
			return nil, ErrTaskNotScheduled
		}
		if err := Current().Prioritise(t); err != nil {
			return nil, err
		}
	} else {
		t.mu.Unlock()
	}
	if _, err := t.done.Wait(Forever, nil); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return t.result, nil
}

// ContinueWith registers fn to run after this task terminates, gated by
// options: if none of the option flags matches the terminal state, the
// continuation task is canceled instead of run. The continuation runs
// inline on the completing goroutine when [ContinueInline] is set, and is
// queued on the current scheduler otherwise. The returned task starts in
// the Scheduled state.
func (t *Task) ContinueWith(options ContinuationOptions, fn func(t, antecedent *Task) (any, error)) *Task {
	cont := newTask(func(ct *Task) (any, error) { return fn(ct, t) }, "", nil, false)
	cont.mu.Lock()
	cont.state = StateScheduled
	cont.mu.Unlock()
	continuations.add(&taskContinuation{
		gate:       gate{when: ContinueWhenAll, events: []*Event{t.done}},
		antecedent: t,
		then:       cont,
		options:    options,
	})
	return cont
}

// taskContinuation gates a single continuation task on one antecedent.
type taskContinuation struct {
	antecedent *Task
	then       *Task
	options    ContinuationOptions
	gate
}

func (c *taskContinuation) tryContinue() bool {
	if !c.satisfied() {
		return false
	}
	c.done = true
	return true
}

func (c *taskContinuation) fire() {
	dispatchContinuation(c.then, c.options, !c.options.matchesState(c.antecedent.State()))
}

// tasksContinuation gates a continuation task on a set of antecedents
// with ANY/ALL policy.
//
// For ALL, the gate fires when every task has terminated; the
// continuation runs iff the set of observed terminal states is a subset
// of the option flags, and is canceled otherwise. For ANY, the gate
// fires as soon as one task terminates in a matching state; if tasks
// keep terminating in non-matching states the gate stays registered, and
// once all have terminated without a match the continuation is canceled.
type tasksContinuation struct {
	tasks   []*Task
	then    *Task
	options ContinuationOptions
	cancel  bool
	gate
}

func (c *tasksContinuation) tryContinue() bool {
	if c.done {
		return false
	}
	signaled := 0
	for _, e := range c.events {
		if e.IsSignaled() {
			signaled++
		}
	}
	switch c.when {
	case ContinueWhenAll:
		if signaled < len(c.events) {
			return false
		}
		c.cancel = false
		for _, t := range c.tasks {
			if !c.options.matchesState(t.State()) {
				c.cancel = true
				break
			}
		}
		c.done = true
		return true
	default: // ContinueWhenAny
		if signaled == 0 && len(c.events) > 0 {
			return false
		}
		match := false
		terminal := 0
		for _, t := range c.tasks {
			state := t.State()
			if state.IsTerminal() {
				terminal++
			}
			if c.options.matchesState(state) {
				match = true
			}
		}
		switch {
		case match:
			c.cancel = false
		case terminal == len(c.tasks):
			c.cancel = true
		default:
			return false
		}
		c.done = true
		return true
	}
}

func (c *tasksContinuation) fire() {
	dispatchContinuation(c.then, c.options, c.cancel)
}

// dispatchContinuation runs, queues, or cancels a gated continuation
// task on the firing goroutine.
func dispatchContinuation(then *Task, options ContinuationOptions, cancel bool) {
	if cancel {
		_ = then.cancelAndNotify()
		return
	}
	s := Current()
	if options&ContinueInline != 0 || then.inline {
		_ = inlineRun(s, then)
		return
	}
	_ = s.Queue(then)
}

// doneEvents returns the completion events of the given tasks.
func doneEvents(tasks []*Task) []*Event {
	events := make([]*Event, len(tasks))
	for i, t := range tasks {
		events[i] = t.done
	}
	return events
}

// WaitAllTasks blocks until every task has terminated. If failOnCancel
// is set and any observed task was canceled, it returns
// [ErrAwaitedTaskCanceled]; otherwise failures are collected into an
// [AggregateError]. Returns false on timeout.
func WaitAllTasks(tasks []*Task, timeout time.Duration, failOnCancel bool, interrupt *Interrupt) (bool, error) {
	fired, err := WaitAll(doneEvents(tasks), timeout, interrupt)
	if err != nil || !fired {
		return fired, err
	}
	return true, collectTaskFailures(tasks, failOnCancel)
}

// WaitAnyTasks blocks until at least one task has terminated, with the
// same error contract as [WaitAllTasks].
func WaitAnyTasks(tasks []*Task, timeout time.Duration, failOnCancel bool, interrupt *Interrupt) (bool, error) {
	fired, err := WaitAny(doneEvents(tasks), timeout, interrupt)
	if err != nil || !fired {
		return fired, err
	}
	return true, collectTaskFailures(tasks, failOnCancel)
}

func collectTaskFailures(tasks []*Task, failOnCancel bool) error {
	if failOnCancel {
		for _, t := range tasks {
			if t.IsCanceled() {
				return ErrAwaitedTaskCanceled
			}
		}
	}
	var errs []error
	for _, t := range tasks {
		if t.IsFailed() {
			errs = append(errs, t.Exception())
		}
	}
	if len(errs) > 0 {
		return NewAggregateError(errs).Flatten()
	}
	return nil
}

// FromResult returns a task already completed with the given result,
// used for immediate continuation chaining.
func FromResult(result any) *Task {
	t := newTask(func(*Task) (any, error) { return result, nil }, "", nil, false)
	t.inline = true
	_ = t.RunSynchronously()
	return t
}
