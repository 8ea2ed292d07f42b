package taskflow

import (
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/go-taskflow/internal/goid"
	"github.com/joeycumines/logiface"
)

// SchedulerConfig models optional configuration, for
// [NewConcurrentTaskScheduler]. A nil config selects all defaults.
type SchedulerConfig struct {
	// Logger receives worker lifecycle events, at trace/debug levels.
	// **Defaults to the package logger, see [SetLogger].**
	// If the package logger is also nil, logging is disabled.
	Logger *logiface.Logger[logiface.Event]

	// MaxParallelism bounds the number of concurrently active workers.
	// **Defaults to [runtime.NumCPU], if 0.**
	// NewConcurrentTaskScheduler panics on negative values.
	MaxParallelism int

	// KeepAlive is how long an idle worker waits for more work before
	// exiting. **Defaults to 100ms, if 0.**
	KeepAlive time.Duration
}

// workItem is one unit of scheduler queue traffic: a task to run, or a
// resume sentinel posted by a suspended worker. A worker that dequeues a
// sentinel closes it, handing the sentinel's owner its slot back.
type workItem struct {
	task   *Task
	resume chan struct{}
}

// ConcurrentTaskScheduler runs tasks on a bounded pool of worker
// goroutines.
//
// Tasks queued in order are dispatched to workers in FIFO order. When a
// worker blocks on a synchronization primitive, the primitive calls
// [ConcurrentTaskScheduler.Suspend]; the worker is moved out of the
// active count and a replacement is spawned, so `MaxParallelism` units
// of useful work remain available. The replacement terminates itself
// once the active count exceeds the ceiling again.
//
// Close the scheduler when it is no longer needed; the default
// process-wide scheduler is never closed.
type ConcurrentTaskScheduler struct {
	logger         *logiface.Logger[logiface.Event]
	queue          *Queue[workItem]
	closeSignal    *InterruptSignal
	closed         *Event
	active         map[uint64]struct{}
	suspended      map[uint64]struct{}
	mu             sync.Mutex
	pending        int // workers spawned but not yet registered
	workers        int // all live workers, active or not
	maxParallelism int
	keepAlive      time.Duration
}

var _ TaskScheduler = (*ConcurrentTaskScheduler)(nil)

// NewConcurrentTaskScheduler initializes a scheduler using the provided
// config, which may be nil. A panic will occur on invalid config.
func NewConcurrentTaskScheduler(config *SchedulerConfig) *ConcurrentTaskScheduler {
	s := &ConcurrentTaskScheduler{
		queue:          NewQueue[workItem](),
		closeSignal:    NewInterruptSignal(),
		active:         make(map[uint64]struct{}),
		suspended:      make(map[uint64]struct{}),
		maxParallelism: runtime.NumCPU(),
		keepAlive:      defaultKeepAlive,
	}
	if config != nil {
		if config.MaxParallelism < 0 {
			panic(`taskflow: max parallelism must be at least 1`)
		}
		if config.MaxParallelism != 0 {
			s.maxParallelism = config.MaxParallelism
		}
		if config.KeepAlive != 0 {
			s.keepAlive = config.KeepAlive
		}
		s.logger = config.Logger
	}
	if s.logger == nil {
		s.logger = Logger()
	}
	return s
}

// MaxParallelism returns the configured worker ceiling.
func (s *ConcurrentTaskScheduler) MaxParallelism() int { return s.maxParallelism }

// KeepAlive returns how long idle workers linger before exiting.
func (s *ConcurrentTaskScheduler) KeepAlive() time.Duration { return s.keepAlive }

// Workers returns the number of live worker goroutines.
func (s *ConcurrentTaskScheduler) Workers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workers + s.pending
}

// ActiveWorkers returns the number of workers currently counted against
// the parallelism ceiling.
func (s *ConcurrentTaskScheduler) ActiveWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) + s.pending
}

// SuspendedWorkers returns the number of workers parked in a suspended
// blocking operation.
func (s *ConcurrentTaskScheduler) SuspendedWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.suspended)
}

// Queue schedules the task. Should not be called directly — use
// [Task.Schedule] instead, which performs the lifecycle transition.
func (s *ConcurrentTaskScheduler) Queue(t *Task) error {
	s.mu.Lock()
	if s.closed != nil {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	if len(s.active)+s.pending < s.maxParallelism {
		s.pending++
		s.mu.Unlock()
		go s.worker(workItem{task: t})
		return nil
	}
	s.mu.Unlock()
	s.queue.Enqueue(workItem{task: t})
	return nil
}

// Prioritise runs the task inline when called from within a worker (or
// any goroutine currently running a task), and schedules it otherwise.
func (s *ConcurrentTaskScheduler) Prioritise(t *Task) error {
	if CurrentTask() != nil {
		return inlineRun(s, t)
	}
	return t.Schedule(s)
}

// Suspend implements the worker replacement protocol. The returned
// resume function posts a sentinel into the work queue, waits for a
// worker to hand the slot back, and then rejoins the active set on the
// same goroutine.
func (s *ConcurrentTaskScheduler) Suspend() func() {
	if CurrentTask() == nil {
		return func() {}
	}
	gid := goid.ID()
	s.mu.Lock()
	if _, ok := s.suspended[gid]; ok {
		s.mu.Unlock()
		return func() {}
	}
	if _, ok := s.active[gid]; !ok {
		s.mu.Unlock()
		return func() {}
	}
	delete(s.active, gid)
	s.suspended[gid] = struct{}{}
	s.pending++
	s.mu.Unlock()
	s.logger.Trace().Uint64(`worker`, gid).Log(`worker suspended`)
	go s.worker(workItem{})
	return func() {
		resume := make(chan struct{})
		s.queue.Enqueue(workItem{resume: resume})
		// Workers may idle out while the sentinel is in flight, so keep
		// topping the pool up until one hands the slot back.
		for {
			s.mu.Lock()
			spawn := len(s.active)+s.pending < s.maxParallelism
			if spawn {
				s.pending++
			}
			s.mu.Unlock()
			if spawn {
				go s.worker(workItem{})
			}
			t := time.NewTimer(s.keepAlive)
			select {
			case <-resume:
				t.Stop()
			case <-t.C:
				continue
			}
			break
		}
		s.mu.Lock()
		delete(s.suspended, gid)
		s.active[gid] = struct{}{}
		s.mu.Unlock()
		s.logger.Trace().Uint64(`worker`, gid).Log(`worker resumed`)
	}
}

// Close signals the close token, then waits for all workers to exit.
// Workers finish the task they are running; new Queue calls fail with
// [ErrSchedulerClosed].
func (s *ConcurrentTaskScheduler) Close() error {
	s.mu.Lock()
	if s.closed != nil {
		closed := s.closed
		s.mu.Unlock()
		_, _ = closed.Wait(Forever, nil)
		return nil
	}
	s.closed = NewEvent()
	closed := s.closed
	wait := s.workers+s.pending > 0
	s.mu.Unlock()
	s.closeSignal.Signal()
	if wait {
		_, _ = closed.Wait(Forever, nil)
	}
	s.logger.Debug().Log(`scheduler closed`)
	return nil
}

// worker is the body of one pool goroutine. Its first unit of work may
// be empty (replacement and resume-helper workers start idle).
func (s *ConcurrentTaskScheduler) worker(w workItem) {
	gid := goid.ID()
	s.mu.Lock()
	s.pending--
	s.active[gid] = struct{}{}
	s.workers++
	s.mu.Unlock()
	registerWorker(s)
	s.logger.Trace().Uint64(`worker`, gid).Log(`worker started`)
	defer func() {
		unregisterWorker()
		s.mu.Lock()
		delete(s.active, gid)
		delete(s.suspended, gid)
		s.workers--
		closed := s.closed
		drained := s.workers == 0
		s.mu.Unlock()
		s.logger.Trace().Uint64(`worker`, gid).Log(`worker stopped`)
		if closed != nil && drained {
			closed.Signal()
		}
	}()
	for {
		if w.task != nil {
			// The task may have been run synchronously in the meantime.
			if w.task.State() == StateScheduled {
				_ = inlineRun(s, w.task)
			}
		} else if w.resume != nil {
			close(w.resume)
		}
		w = workItem{}

		s.mu.Lock()
		if len(s.active) > s.maxParallelism {
			// Replacement worker winding down after a resume.
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		next, ok, err := s.queue.Dequeue(s.keepAlive, s.closeSignal.Interrupt())
		if !ok || err != nil {
			return
		}
		w = next
	}
}
