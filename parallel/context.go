package parallel

import (
	"runtime"
	"sync"

	taskflow "github.com/joeycumines/go-taskflow"
	"github.com/joeycumines/go-taskflow/internal/goid"
)

// ParallelContext scopes a scheduler, a parallelism ceiling, and an
// interrupt for the parallel operators built while it is active.
// Contexts stack per goroutine: the innermost entered context is
// consulted by [Background], [ForEach], [Map], [Process], and the
// pipeline operators, so nested parallelism inherits interrupt
// propagation.
//
//	pc := parallel.NewParallelContext(4, sig.Interrupt(), nil).Enter()
//	defer pc.Exit()
//
// Exiting a context signals its interrupt, canceling any work still
// running under it.
type ParallelContext struct {
	scheduler      taskflow.TaskScheduler
	signal         *taskflow.InterruptSignal
	id             uint64
	maxParallelism int
}

var contextState = struct {
	stacks map[uint64][]*ParallelContext
	root   *ParallelContext
	mu     sync.Mutex
	nextID uint64
}{stacks: make(map[uint64][]*ParallelContext)}

// NewParallelContext creates a context. A nil scheduler selects the
// default scheduler; a nil interrupt leaves the context's own interrupt
// unparented. Panics if maxParallelism is less than 1.
func NewParallelContext(maxParallelism int, interrupt *taskflow.Interrupt, scheduler taskflow.TaskScheduler) *ParallelContext {
	if maxParallelism < 1 {
		panic(`parallel: max parallelism must be at least 1`)
	}
	if scheduler == nil {
		scheduler = taskflow.Default()
	}
	contextState.mu.Lock()
	id := contextState.nextID
	contextState.nextID++
	contextState.mu.Unlock()
	return &ParallelContext{
		id:             id,
		maxParallelism: maxParallelism,
		scheduler:      scheduler,
		signal:         taskflow.NewInterruptSignal(interrupt),
	}
}

// RootContext returns the process-wide root context, lazily sized by the
// available hardware parallelism.
func RootContext() *ParallelContext {
	contextState.mu.Lock()
	root := contextState.root
	contextState.mu.Unlock()
	if root == nil {
		root = NewParallelContext(runtime.NumCPU(), nil, nil)
		contextState.mu.Lock()
		if contextState.root == nil {
			contextState.root = root
		}
		root = contextState.root
		contextState.mu.Unlock()
	}
	return root
}

// CurrentContext returns the innermost context entered on this
// goroutine, or the root context.
func CurrentContext() *ParallelContext {
	contextState.mu.Lock()
	stack := contextState.stacks[goid.ID()]
	contextState.mu.Unlock()
	if len(stack) > 0 {
		return stack[len(stack)-1]
	}
	return RootContext()
}

// ID returns the context's unique id.
func (pc *ParallelContext) ID() uint64 { return pc.id }

// MaxParallelism returns the context's parallelism ceiling.
func (pc *ParallelContext) MaxParallelism() int { return pc.maxParallelism }

// Scheduler returns the context's scheduler.
func (pc *ParallelContext) Scheduler() taskflow.TaskScheduler { return pc.scheduler }

// Interrupt returns the context's own interrupt token.
func (pc *ParallelContext) Interrupt() *taskflow.Interrupt { return pc.signal.Interrupt() }

// IsRoot reports whether this is the root context.
func (pc *ParallelContext) IsRoot() bool { return pc == RootContext() }

// Enter pushes the context onto this goroutine's stack and returns it.
func (pc *ParallelContext) Enter() *ParallelContext {
	gid := goid.ID()
	contextState.mu.Lock()
	contextState.stacks[gid] = append(contextState.stacks[gid], pc)
	contextState.mu.Unlock()
	return pc
}

// Exit signals the context's interrupt — canceling any ongoing work
// started under it — and pops it from this goroutine's stack. Returns
// [ErrContextMisnested] if the context is not the innermost one.
func (pc *ParallelContext) Exit() error {
	pc.signal.Signal()
	gid := goid.ID()
	contextState.mu.Lock()
	defer contextState.mu.Unlock()
	stack := contextState.stacks[gid]
	if len(stack) == 0 || stack[len(stack)-1] != pc {
		return ErrContextMisnested
	}
	stack = stack[:len(stack)-1]
	if len(stack) == 0 {
		delete(contextState.stacks, gid)
	} else {
		contextState.stacks[gid] = stack
	}
	return nil
}
