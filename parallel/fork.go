package parallel

import (
	taskflow "github.com/joeycumines/go-taskflow"
)

// PFork duplicates every input item into each branch stage and merges
// all branch outputs into a single output queue.
//
// Completion of the output is the conjunction of branch completions.
// Failure or cancellation of any feeder propagates to every branch queue
// and to the output queue. Failure or cancellation of a branch fails the
// output queue only; the other branches' queues are not failed.
type PFork[Tin, Tout any] struct {
	branches    []Stage[Tin, Tout]
	parallelism int
}

var _ Stage[int, int] = (*PFork[int, int])(nil)

// Fork creates a fan-out stage over the given branches, feeding them
// with parallelism feeder tasks. A parallelism below 1 defers to the
// current [ParallelContext] at application time.
func Fork[Tin, Tout any](parallelism int, branches ...Stage[Tin, Tout]) *PFork[Tin, Tout] {
	return &PFork[Tin, Tout]{branches: branches, parallelism: parallelism}
}

// Apply implements [Stage].
func (f *PFork[Tin, Tout]) Apply(in Iterable[Tin]) *QueueIterator[Tout] {
	out := NewProducerConsumerQueue[Tout]()
	f.run(in, out, true)
	return out.Iterator()
}

func (f *PFork[Tin, Tout]) applyTo(in Iterable[Tin], out *ProducerConsumerQueue[Tout]) *taskflow.Task {
	return f.run(in, out, false)
}

func (f *PFork[Tin, Tout]) run(in Iterable[Tin], out *ProducerConsumerQueue[Tout], ownsOut bool) *taskflow.Task {
	pc := CurrentContext()
	parallelism := f.parallelism
	if parallelism < 1 {
		parallelism = pc.MaxParallelism()
	}
	signal := taskflow.NewInterruptSignal(pc.Interrupt())
	interrupt := signal.Interrupt()

	// One intermediate queue per branch; each branch drains its own and
	// merges into the shared output.
	branchQueues := make([]*ProducerConsumerQueue[Tin], len(f.branches))
	branchTasks := make([]*taskflow.Task, len(f.branches))
	for i, branch := range f.branches {
		branchQueues[i] = NewProducerConsumerQueue[Tin]()
		branchTasks[i] = branch.applyTo(branchQueues[i].Iterator(), out)
	}

	feeders := spawnConsumers(in.Iterator(), consumerConfig{
		parallelism: parallelism,
		interrupt:   interrupt,
		scheduler:   pc.Scheduler(),
	}, func(_ *taskflow.Task, item Tin) error {
		for _, q := range branchQueues {
			if err := q.Put(item); err != nil {
				return err
			}
		}
		return nil
	})

	completeBranches := taskflow.WithAll(feeders, taskflow.ContinuationDefault).
		Run(func(*taskflow.Task, []*taskflow.Task) (any, error) {
			for _, q := range branchQueues {
				_ = q.Complete()
			}
			return nil, nil
		})
	failBranches := taskflow.WithAny(feeders, taskflow.OnFailed|taskflow.ContinueInline).
		Run(func(_ *taskflow.Task, tasks []*taskflow.Task) (any, error) {
			err := aggregateFailures(tasks)
			for _, q := range branchQueues {
				_ = q.FailIfNotComplete(err)
			}
			return nil, out.FailIfNotComplete(err)
		})
	cancelBranches := taskflow.WithAny(feeders, taskflow.OnCanceled|taskflow.ContinueInline).
		Run(func(*taskflow.Task, []*taskflow.Task) (any, error) {
			err := taskflow.NewInterruptError(interrupt)
			for _, q := range branchQueues {
				_ = q.FailIfNotComplete(err)
			}
			return nil, out.FailIfNotComplete(err)
		})

	all := make([]*taskflow.Task, 0, len(branchTasks)+len(feeders)+3)
	all = append(all, branchTasks...)
	all = append(all, feeders...)
	all = append(all, completeBranches, failBranches, cancelBranches)
	return taskflow.WithAll(all, taskflow.ContinuationDefault).
		Run(func(*taskflow.Task, []*taskflow.Task) (any, error) {
			if ownsOut && !out.IsComplete() {
				return nil, out.Complete()
			}
			return nil, nil
		})
}
