package taskflow

import (
	"sync"

	"github.com/joeycumines/go-taskflow/internal/goid"
)

// TaskScheduler dispatches tasks to workers.
//
// Schedulers also own the per-goroutine registry behind [Current] and
// [CurrentTask], so any code — synchronization primitives included — can
// find the scheduler responsible for the goroutine it runs on.
type TaskScheduler interface {
	// Queue schedules the task to run on a worker. Tasks normally
	// arrive here via [Task.Schedule].
	Queue(t *Task) error

	// Prioritise runs the task to completion inline when called from a
	// worker goroutine, bypassing the queue; otherwise it schedules the
	// task. This is what makes lazy tasks runnable even when the queue
	// is saturated.
	Prioritise(t *Task) error

	// Suspend marks the current worker as suspended, so the scheduler
	// can spawn a replacement and keep its useful parallelism at the
	// configured ceiling. It returns the resume function, which must be
	// called on the same goroutine once the blocking operation is over.
	// On goroutines the scheduler does not own, Suspend is a no-op.
	Suspend() func()
}

// schedulerEntry is the per-goroutine record of the owning scheduler and
// the task currently running on it.
type schedulerEntry struct {
	scheduler TaskScheduler
	task      *Task
}

var schedulerThreads = struct {
	entries map[uint64]schedulerEntry
	mu      sync.Mutex
}{entries: make(map[uint64]schedulerEntry)}

var defaultScheduler struct {
	scheduler *ConcurrentTaskScheduler
	once      sync.Once
}

// Default returns the process-wide default scheduler, a lazily
// initialized [ConcurrentTaskScheduler] sized by the available hardware
// parallelism.
func Default() TaskScheduler {
	defaultScheduler.once.Do(func() {
		defaultScheduler.scheduler = NewConcurrentTaskScheduler(nil)
	})
	return defaultScheduler.scheduler
}

// Current returns the scheduler owning the calling goroutine, or the
// default scheduler when called from outside any worker.
func Current() TaskScheduler {
	schedulerThreads.mu.Lock()
	entry, ok := schedulerThreads.entries[goid.ID()]
	schedulerThreads.mu.Unlock()
	if ok {
		return entry.scheduler
	}
	return Default()
}

// CurrentTask returns the task running on the calling goroutine, or nil.
func CurrentTask() *Task {
	schedulerThreads.mu.Lock()
	defer schedulerThreads.mu.Unlock()
	return schedulerThreads.entries[goid.ID()].task
}

// registerWorker records the calling goroutine as a worker of s.
func registerWorker(s TaskScheduler) {
	schedulerThreads.mu.Lock()
	schedulerThreads.entries[goid.ID()] = schedulerEntry{scheduler: s}
	schedulerThreads.mu.Unlock()
}

// unregisterWorker removes the calling goroutine from the registry.
func unregisterWorker() {
	schedulerThreads.mu.Lock()
	delete(schedulerThreads.entries, goid.ID())
	schedulerThreads.mu.Unlock()
}

// inlineRun executes the task on the calling goroutine, making it the
// goroutine's current task for the duration and restoring the previous
// registry entry afterwards. Used by workers, by Prioritise, and by
// inline continuation dispatch.
func inlineRun(s TaskScheduler, t *Task) error {
	gid := goid.ID()
	schedulerThreads.mu.Lock()
	prev, had := schedulerThreads.entries[gid]
	schedulerThreads.entries[gid] = schedulerEntry{scheduler: s, task: t}
	schedulerThreads.mu.Unlock()
	err := t.RunSynchronously()
	schedulerThreads.mu.Lock()
	if had {
		schedulerThreads.entries[gid] = prev
	} else {
		delete(schedulerThreads.entries, gid)
	}
	schedulerThreads.mu.Unlock()
	return err
}
