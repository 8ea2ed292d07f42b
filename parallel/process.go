package parallel

import (
	taskflow "github.com/joeycumines/go-taskflow"
)

// Process runs fn over every input item on parallel tasks, streaming the
// emitted outputs through a fresh queue. The returned iterator sees the
// queue complete when all workers finish, and fail if any worker fails
// or is canceled.
func Process[Tin, Tout any](items Iterable[Tin], opts *Options, fn FnFunc[Tin, Tout]) *QueueIterator[Tout] {
	out := NewProducerConsumerQueue[Tout]()
	processInto(items, opts, fn, out, true)
	return out.Iterator()
}

// ProcessInto is [Process] writing into an externally owned output
// queue, which it never completes: only failure and cancellation are
// propagated. The returned gate task terminates once one of the
// completion continuations has run.
func ProcessInto[Tin, Tout any](items Iterable[Tin], opts *Options, fn FnFunc[Tin, Tout], out *ProducerConsumerQueue[Tout]) *taskflow.Task {
	return processInto(items, opts, fn, out, false)
}

func processInto[Tin, Tout any](items Iterable[Tin], opts *Options, fn FnFunc[Tin, Tout], out *ProducerConsumerQueue[Tout], ownsOut bool) *taskflow.Task {
	cfg := resolveOptions(opts)
	tasks := spawnConsumers(items.Iterator(), cfg, func(t *taskflow.Task, item Tin) error {
		return fn(t, item, func(o Tout) error { return out.Put(o) })
	})
	return wireStage(tasks, out, ownsOut, cfg.interrupt)
}

// Map runs fn over every input item on parallel tasks, streaming the
// single outputs. It is [Process] for one-to-one functions.
func Map[Tin, Tout any](items Iterable[Tin], opts *Options, fn func(t *taskflow.Task, item Tin) (Tout, error)) *QueueIterator[Tout] {
	return Process(items, opts, func(t *taskflow.Task, item Tin, emit func(Tout) error) error {
		out, err := fn(t, item)
		if err != nil {
			return err
		}
		return emit(out)
	})
}
