package parallel

import (
	taskflow "github.com/joeycumines/go-taskflow"
)

// FnFunc is the per-item body of a pipeline stage: it receives one input
// item and emits zero or more output items. Emitted items flow to the
// stage's output queue immediately; emit reports the queue error, if
// any, which the body should return.
type FnFunc[Tin, Tout any] func(t *taskflow.Task, item Tin, emit func(Tout) error) error

// Stage is a composable pipeline operator mapping an input stream to an
// output stream via parallel worker tasks. Stages are built with [Fn],
// [Filter], and [Fork], and composed left-to-right with [Chain].
type Stage[Tin, Tout any] interface {
	// Apply runs the stage over the input, returning an iterator over
	// the stage's own output queue. The queue completes when all
	// workers finish, and fails on worker failure or cancellation.
	Apply(in Iterable[Tin]) *QueueIterator[Tout]

	// applyTo runs the stage into an externally owned output queue,
	// which the stage does not complete; the returned gate task
	// terminates once the stage's completion wiring has run.
	applyTo(in Iterable[Tin], out *ProducerConsumerQueue[Tout]) *taskflow.Task
}

// PFn wraps a per-item function as a pipeline [Stage] with a fixed
// worker count.
type PFn[Tin, Tout any] struct {
	fn          FnFunc[Tin, Tout]
	parallelism int
}

var _ Stage[int, int] = (*PFn[int, int])(nil)

// Fn creates a stage running fn on parallelism worker tasks per
// application. A parallelism below 1 defers to the current
// [ParallelContext] at application time.
func Fn[Tin, Tout any](parallelism int, fn FnFunc[Tin, Tout]) *PFn[Tin, Tout] {
	return &PFn[Tin, Tout]{fn: fn, parallelism: parallelism}
}

// Filter creates a stage that yields only the items pred accepts.
func Filter[T any](parallelism int, pred func(t *taskflow.Task, item T) (bool, error)) *PFn[T, T] {
	return Fn(parallelism, func(t *taskflow.Task, item T, emit func(T) error) error {
		ok, err := pred(t, item)
		if err != nil {
			return err
		}
		if ok {
			return emit(item)
		}
		return nil
	})
}

// Apply implements [Stage].
func (f *PFn[Tin, Tout]) Apply(in Iterable[Tin]) *QueueIterator[Tout] {
	out := NewProducerConsumerQueue[Tout]()
	runStage(f.fn, f.parallelism, in, out, true)
	return out.Iterator()
}

func (f *PFn[Tin, Tout]) applyTo(in Iterable[Tin], out *ProducerConsumerQueue[Tout]) *taskflow.Task {
	return runStage(f.fn, f.parallelism, in, out, false)
}

// chainedStage threads the first stage's output queue into the second.
type chainedStage[Tin, Tmid, Tout any] struct {
	first  Stage[Tin, Tmid]
	second Stage[Tmid, Tout]
}

// Chain composes two stages left-to-right into one. Composition is
// left-associative:
//
//	p := parallel.Chain(parallel.Chain(a, b), c)
func Chain[Tin, Tmid, Tout any](first Stage[Tin, Tmid], second Stage[Tmid, Tout]) Stage[Tin, Tout] {
	return &chainedStage[Tin, Tmid, Tout]{first: first, second: second}
}

func (c *chainedStage[Tin, Tmid, Tout]) Apply(in Iterable[Tin]) *QueueIterator[Tout] {
	return c.second.Apply(c.first.Apply(in))
}

func (c *chainedStage[Tin, Tmid, Tout]) applyTo(in Iterable[Tin], out *ProducerConsumerQueue[Tout]) *taskflow.Task {
	return c.second.applyTo(c.first.Apply(in), out)
}

// runStage spawns the stage's worker tasks and wires completion,
// failure, and cancellation onto out. When the stage owns out, worker
// success completes the queue; either way, worker failure or
// cancellation fails it.
func runStage[Tin, Tout any](fn FnFunc[Tin, Tout], parallelism int, in Iterable[Tin], out *ProducerConsumerQueue[Tout], ownsOut bool) *taskflow.Task {
	pc := CurrentContext()
	if parallelism < 1 {
		parallelism = pc.MaxParallelism()
	}
	signal := taskflow.NewInterruptSignal(pc.Interrupt())
	tasks := spawnConsumers(in.Iterator(), consumerConfig{
		parallelism: parallelism,
		interrupt:   signal.Interrupt(),
		scheduler:   pc.Scheduler(),
	}, func(t *taskflow.Task, item Tin) error {
		return fn(t, item, func(o Tout) error { return out.Put(o) })
	})
	return wireStage(tasks, out, ownsOut, signal.Interrupt())
}

// consumerConfig carries the resolved settings for a batch of
// queue-draining worker tasks.
type consumerConfig struct {
	scheduler   taskflow.TaskScheduler
	interrupt   *taskflow.Interrupt
	name        string
	parallelism int
}

// spawnConsumers starts cfg.parallelism tasks that compete over it,
// applying fn to each item. A worker stops at the end of the stream, or
// on the first error from the stream or fn.
func spawnConsumers[T any](it *QueueIterator[T], cfg consumerConfig, fn func(t *taskflow.Task, item T) error) []*taskflow.Task {
	tasks := make([]*taskflow.Task, 0, cfg.parallelism)
	for range cfg.parallelism {
		t, err := taskflow.Create().
			Name(cfg.name).
			Scheduler(cfg.scheduler).
			Interrupt(cfg.interrupt).
			Run(func(t *taskflow.Task) (any, error) {
				for {
					item, ok, err := it.Next(taskflow.Forever, t.Interrupt())
					if err != nil {
						return nil, err
					}
					if !ok {
						return nil, nil
					}
					if err := fn(t, item); err != nil {
						return nil, err
					}
				}
			})
		if err != nil {
			// Scheduler closed; surface through a failed gate task.
			failed := taskflow.Plan(func(*taskflow.Task) (any, error) { return nil, err })
			_ = failed.RunSynchronously()
			tasks = append(tasks, failed)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// wireStage attaches the completion continuations of a stage: all
// workers succeeded → complete (when the stage owns the queue); any
// worker canceled → fail with the stage interrupt; any worker failed →
// fail with the aggregated worker failures. Returns a gate task over the
// three outcomes, or nil when the stage owns the queue.
func wireStage[Tout any](tasks []*taskflow.Task, out *ProducerConsumerQueue[Tout], ownsOut bool, interrupt *taskflow.Interrupt) *taskflow.Task {
	success := taskflow.WithAll(tasks, taskflow.OnCompletedSuccessfully|taskflow.ContinueInline).
		Run(func(*taskflow.Task, []*taskflow.Task) (any, error) {
			if ownsOut {
				return nil, out.Complete()
			}
			return nil, nil
		})
	canceled := taskflow.WithAny(tasks, taskflow.OnCanceled|taskflow.ContinueInline).
		Run(func(*taskflow.Task, []*taskflow.Task) (any, error) {
			return nil, out.FailIfNotComplete(taskflow.NewInterruptError(interrupt))
		})
	failed := taskflow.WithAny(tasks, taskflow.OnFailed|taskflow.ContinueInline).
		Run(func(_ *taskflow.Task, tasks []*taskflow.Task) (any, error) {
			return nil, out.FailIfNotComplete(aggregateFailures(tasks))
		})
	if ownsOut {
		return nil
	}
	return taskflow.WithAny([]*taskflow.Task{success, canceled, failed}, 0).Plan()
}

// aggregateFailures flattens the failures of the failed tasks into one
// aggregate error.
func aggregateFailures(tasks []*taskflow.Task) *taskflow.AggregateError {
	var errs []error
	for _, t := range tasks {
		if t.IsFailed() {
			errs = append(errs, t.Exception())
		}
	}
	return taskflow.NewAggregateError(errs).Flatten()
}
