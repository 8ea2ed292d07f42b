package parallel

import (
	taskflow "github.com/joeycumines/go-taskflow"
)

// Options models the optional settings shared by [Background],
// [ForEach], [Map], [Process], and [ProcessInto]. A nil *Options selects
// all defaults.
type Options struct {
	// Scheduler runs the spawned tasks. **Defaults to the current
	// parallel context's scheduler, or — at the root context — the
	// current task scheduler.**
	Scheduler taskflow.TaskScheduler

	// Interrupt is linked, together with the current context's
	// interrupt, into the fresh token the spawned tasks observe.
	Interrupt *taskflow.Interrupt

	// TaskName names the spawned tasks.
	TaskName string

	// Parallelism is the number of tasks to spawn. The effective value
	// is never below the current context's MaxParallelism.
	Parallelism int
}

// resolveOptions folds opts with the current [ParallelContext] into the
// concrete settings of one parallel operation. The returned interrupt is
// a fresh token parented to both the option interrupt and the context
// interrupt.
func resolveOptions(opts *Options) consumerConfig {
	if opts == nil {
		opts = &Options{}
	}
	pc := CurrentContext()
	scheduler := opts.Scheduler
	if scheduler == nil {
		if pc.IsRoot() {
			scheduler = taskflow.Current()
		} else {
			scheduler = pc.Scheduler()
		}
	}
	parallelism := opts.Parallelism
	if pc.MaxParallelism() > parallelism {
		parallelism = pc.MaxParallelism()
	}
	return consumerConfig{
		name:        opts.TaskName,
		parallelism: parallelism,
		interrupt:   taskflow.NewInterruptSignal(opts.Interrupt, pc.Interrupt()).Interrupt(),
		scheduler:   scheduler,
	}
}
