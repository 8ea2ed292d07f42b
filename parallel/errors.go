package parallel

// ParallelError reports misuse of a queue, pipeline, or distributor.
type ParallelError struct {
	Message string
}

// Error implements the error interface.
func (e *ParallelError) Error() string {
	if e.Message == "" {
		return "parallel error"
	}
	return e.Message
}

// Is reports a match against any *ParallelError with the same message,
// so the exported values below work with [errors.Is].
func (e *ParallelError) Is(target error) bool {
	t, ok := target.(*ParallelError)
	return ok && (t.Message == "" || t.Message == e.Message)
}

var (
	// ErrQueueCompleted is returned by mutations of a completed
	// [ProducerConsumerQueue].
	ErrQueueCompleted = &ParallelError{Message: "producer/consumer queue is completed"}

	// ErrQueueAsyncLinked is returned by direct mutations of a queue
	// that is async-linked to an upstream iterator; only the internal
	// feeder may mutate such a queue.
	ErrQueueAsyncLinked = &ParallelError{Message: "producer/consumer queue is linked to an upstream iterator and cannot be mutated directly"}

	// ErrDistributionStarted is returned by [Distributor.Take] and
	// [Distributor.Start] once distribution has begun.
	ErrDistributionStarted = &ParallelError{Message: "distribution has already begun"}

	// ErrContextMisnested is returned by [ParallelContext.Exit] when the
	// exiting context is not the innermost one on this goroutine.
	ErrContextMisnested = &ParallelError{Message: "parallel context exited while a nested context is still active"}
)
