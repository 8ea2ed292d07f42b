package parallel

import (
	taskflow "github.com/joeycumines/go-taskflow"
)

// ForEach applies fn to every input item on parallel tasks. The returned
// gate task completes when all workers succeeded, and is canceled if any
// worker failed or was canceled (wait on it, or attach continuations,
// to observe the outcome; individual failures surface on the worker
// tasks' own errors via the input's failure propagation).
//
// The worker count is clamped to the item count for inputs of known
// size.
func ForEach[T any](items Iterable[T], opts *Options, fn func(t *taskflow.Task, item T) error) *taskflow.Task {
	cfg := resolveOptions(opts)
	if s, ok := items.(sized); ok && s.size() < cfg.parallelism {
		cfg.parallelism = s.size()
	}
	tasks := spawnConsumers(items.Iterator(), cfg, fn)
	return taskflow.WithAll(tasks, 0).Plan()
}

// Background runs fn on parallelism parallel tasks (no input stream).
// The returned gate task behaves as in [ForEach].
func Background(opts *Options, fn func(t *taskflow.Task) error) *taskflow.Task {
	cfg := resolveOptions(opts)
	tasks := make([]*taskflow.Task, 0, cfg.parallelism)
	for range cfg.parallelism {
		t, err := taskflow.Create().
			Name(cfg.name).
			Scheduler(cfg.scheduler).
			Interrupt(cfg.interrupt).
			Run(func(t *taskflow.Task) (any, error) { return nil, fn(t) })
		if err != nil {
			failed := taskflow.Plan(nil)
			failed.Cancel()
			tasks = append(tasks, failed)
			continue
		}
		tasks = append(tasks, t)
	}
	return taskflow.WithAll(tasks, 0).Plan()
}
