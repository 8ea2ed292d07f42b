package taskflow

import (
	"fmt"
	"strings"
)

// ThreadingError reports misuse of a synchronization primitive, such as
// releasing an unheld lock or queueing work on a closed scheduler.
type ThreadingError struct {
	Message string
}

// Error implements the error interface.
func (e *ThreadingError) Error() string {
	if e.Message == "" {
		return "threading error"
	}
	return e.Message
}

// Is reports a match against any *ThreadingError with the same message,
// so the exported values below work with [errors.Is].
func (e *ThreadingError) Is(target error) bool {
	t, ok := target.(*ThreadingError)
	return ok && (t.Message == "" || t.Message == e.Message)
}

var (
	// ErrNegativeTimeout is returned when a wait is given a negative
	// timeout. Use zero for non-blocking and [Forever] for unbounded.
	ErrNegativeTimeout = &ThreadingError{Message: "timeout must be a non-negative duration"}

	// ErrTimeout is returned by operations that distinguish a timeout
	// from an ordinary "not ready" result.
	ErrTimeout = &ThreadingError{Message: "operation timed out"}

	// ErrSchedulerClosed is returned when a task is queued on a closed
	// scheduler.
	ErrSchedulerClosed = &ThreadingError{Message: "task scheduler has been closed"}

	// ErrNotHeld is returned when releasing a lock or semaphore that is
	// not held by the caller.
	ErrNotHeld = &ThreadingError{Message: "release of unheld lock"}
)

// TaskErrorKind identifies the class of task misuse reported by a
// [TaskError].
type TaskErrorKind int

const (
	// TaskNotScheduled: the task's result was demanded but the task was
	// never scheduled (and is not lazy).
	TaskNotScheduled TaskErrorKind = iota + 1
	// TaskAlreadyScheduled: the task was scheduled twice.
	TaskAlreadyScheduled
	// TaskAlreadyRunning: the task is currently running.
	TaskAlreadyRunning
	// TaskCompleted: the operation is illegal on a terminal task.
	TaskCompleted
	// TaskCanceledBeforeRun: the task was canceled before it could run.
	TaskCanceledBeforeRun
	// AwaitedTaskCanceled: a multi-task wait observed a canceled task
	// with failOnCancel set.
	AwaitedTaskCanceled
	// TaskInvalidTransition: an illegal lifecycle transition was
	// attempted. Always a programming error.
	TaskInvalidTransition
	// TaskWrongScheduler: the task is scheduled on another scheduler.
	TaskWrongScheduler
)

func (k TaskErrorKind) String() string {
	switch k {
	case TaskNotScheduled:
		return "NotScheduled"
	case TaskAlreadyScheduled:
		return "AlreadyScheduled"
	case TaskAlreadyRunning:
		return "AlreadyRunning"
	case TaskCompleted:
		return "Completed"
	case TaskCanceledBeforeRun:
		return "Canceled"
	case AwaitedTaskCanceled:
		return "AwaitedTaskCanceled"
	case TaskInvalidTransition:
		return "InvalidTransition"
	case TaskWrongScheduler:
		return "WrongScheduler"
	default:
		return fmt.Sprintf("TaskErrorKind(%d)", int(k))
	}
}

// TaskError reports misuse of a [Task].
type TaskError struct {
	Message string
	Kind    TaskErrorKind
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "task error: " + e.Kind.String()
}

// Is matches any *TaskError of the same kind, so sentinel values work
// with [errors.Is].
func (e *TaskError) Is(target error) bool {
	t, ok := target.(*TaskError)
	return ok && t.Kind == e.Kind
}

var (
	// ErrTaskNotScheduled is the sentinel for [TaskNotScheduled].
	ErrTaskNotScheduled = &TaskError{Kind: TaskNotScheduled, Message: "task is not scheduled to start"}
	// ErrTaskAlreadyScheduled is the sentinel for [TaskAlreadyScheduled].
	ErrTaskAlreadyScheduled = &TaskError{Kind: TaskAlreadyScheduled, Message: "task is already scheduled"}
	// ErrTaskAlreadyRunning is the sentinel for [TaskAlreadyRunning].
	ErrTaskAlreadyRunning = &TaskError{Kind: TaskAlreadyRunning, Message: "task is already running"}
	// ErrTaskCompleted is the sentinel for [TaskCompleted].
	ErrTaskCompleted = &TaskError{Kind: TaskCompleted, Message: "task is already done"}
	// ErrTaskCanceled is the sentinel for [TaskCanceledBeforeRun].
	ErrTaskCanceled = &TaskError{Kind: TaskCanceledBeforeRun, Message: "task was canceled"}
	// ErrAwaitedTaskCanceled is the sentinel for [AwaitedTaskCanceled].
	ErrAwaitedTaskCanceled = &TaskError{Kind: AwaitedTaskCanceled, Message: "one or more awaited tasks were canceled"}
	// ErrTaskWrongScheduler is the sentinel for [TaskWrongScheduler].
	ErrTaskWrongScheduler = &TaskError{Kind: TaskWrongScheduler, Message: "task is already scheduled on another scheduler"}
)

// InterruptError signals cooperative cancellation. It carries the
// [Interrupt] token that triggered it, which [Task] uses to decide
// between the Canceled and Failed terminal states.
type InterruptError struct {
	interrupt *Interrupt
}

// NewInterruptError returns an InterruptError carrying the given token.
// Most callers never construct one directly; they receive the stored
// error from [Interrupt.Err] or from a blocking primitive.
func NewInterruptError(interrupt *Interrupt) *InterruptError {
	return &InterruptError{interrupt: interrupt}
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	return "task or operation was canceled"
}

// Interrupt returns the token that triggered the cancellation.
func (e *InterruptError) Interrupt() *Interrupt {
	return e.interrupt
}

// Is matches any *InterruptError, regardless of token.
func (e *InterruptError) Is(target error) bool {
	_, ok := target.(*InterruptError)
	return ok
}

// PanicError wraps a recovered panic value from a task body, recorded as
// the task's failure.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Unwrap returns the panic value if it was an error, enabling matching
// through the cause chain.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// AggregateError collects the failures of multiple tasks.
type AggregateError struct {
	Errors []error
}

// NewAggregateError returns an aggregate over errs, with nil entries
// dropped.
func NewAggregateError(errs []error) *AggregateError {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return &AggregateError{Errors: out}
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "aggregate error (empty)"
	case 1:
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n\t")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns the contained errors for multi-error matching with
// [errors.Is] and [errors.As].
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// Is matches any *AggregateError.
func (e *AggregateError) Is(target error) bool {
	_, ok := target.(*AggregateError)
	return ok
}

// Flatten returns an aggregate whose contained errors include no nested
// aggregates.
func (e *AggregateError) Flatten() *AggregateError {
	out := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		if nested, ok := err.(*AggregateError); ok {
			out = append(out, nested.Flatten().Errors...)
		} else if err != nil {
			out = append(out, err)
		}
	}
	return &AggregateError{Errors: out}
}

// Handle calls pred for each contained error. If pred handles every
// error, Handle returns nil; otherwise it returns a new aggregate
// holding only the unhandled errors.
func (e *AggregateError) Handle(pred func(error) bool) error {
	var unhandled []error
	for _, err := range e.Flatten().Errors {
		if !pred(err) {
			unhandled = append(unhandled, err)
		}
	}
	if len(unhandled) == 0 {
		return nil
	}
	return &AggregateError{Errors: unhandled}
}
