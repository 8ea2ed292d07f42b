package taskflow

// TaskBuilder configures a task before creating it. Obtain one with
// [Create]; all methods return the builder for chaining.
//
//	t, err := taskflow.Create().
//	    Name("fetch").
//	    Interrupt(sig.Interrupt()).
//	    Run(fetch)
type TaskBuilder struct {
	name      string
	interrupt *Interrupt
	scheduler TaskScheduler
	lazy      bool
}

// Create starts building a task.
func Create() *TaskBuilder { return &TaskBuilder{} }

// Name sets the task name. Defaults to "task-<id>".
func (b *TaskBuilder) Name(name string) *TaskBuilder {
	b.name = name
	return b
}

// Interrupt links the task's own interrupt to the given parent token.
func (b *TaskBuilder) Interrupt(interrupt *Interrupt) *TaskBuilder {
	b.interrupt = interrupt
	return b
}

// Scheduler sets the scheduler used by Run. Defaults to the current
// scheduler.
func (b *TaskBuilder) Scheduler(scheduler TaskScheduler) *TaskBuilder {
	b.scheduler = scheduler
	return b
}

// Lazy marks the task to defer scheduling until its result is demanded.
func (b *TaskBuilder) Lazy() *TaskBuilder {
	b.lazy = true
	return b
}

// Plan creates the task without scheduling it.
func (b *TaskBuilder) Plan(fn TaskFunc) *Task {
	return newTask(fn, b.name, b.interrupt, b.lazy)
}

// Run creates the task and schedules it.
func (b *TaskBuilder) Run(fn TaskFunc) (*Task, error) {
	t := b.Plan(fn)
	if err := t.Schedule(b.scheduler); err != nil {
		return nil, err
	}
	return t, nil
}

// Run creates a task from fn and schedules it on the current scheduler.
func Run(fn TaskFunc) (*Task, error) { return Create().Run(fn) }

// Plan creates a task from fn without scheduling it.
func Plan(fn TaskFunc) *Task { return Create().Plan(fn) }

// ContinuationBuilder configures a continuation over a set of tasks,
// built by [WithAll] or [WithAny].
type ContinuationBuilder struct {
	tasks     []*Task
	name      string
	interrupt *Interrupt
	when      ContinueWhen
	options   ContinuationOptions
}

// WithAll builds a continuation that fires once every task has
// terminated; it runs iff the set of observed terminal states is a
// subset of options (zero options default to
// [OnCompletedSuccessfully]), and is canceled otherwise.
func WithAll(tasks []*Task, options ContinuationOptions) *ContinuationBuilder {
	return newContinuationBuilder(tasks, ContinueWhenAll, options)
}

// WithAny builds a continuation that fires as soon as one task reaches a
// state matching options (zero options default to
// [OnCompletedSuccessfully]); if every task terminates without a match,
// the continuation is canceled.
func WithAny(tasks []*Task, options ContinuationOptions) *ContinuationBuilder {
	return newContinuationBuilder(tasks, ContinueWhenAny, options)
}

func newContinuationBuilder(tasks []*Task, when ContinueWhen, options ContinuationOptions) *ContinuationBuilder {
	if options&(OnCompletedSuccessfully|OnFailed|OnCanceled) == 0 {
		options |= OnCompletedSuccessfully
	}
	return &ContinuationBuilder{tasks: tasks, when: when, options: options}
}

// Name sets the continuation task's name.
func (b *ContinuationBuilder) Name(name string) *ContinuationBuilder {
	b.name = name
	return b
}

// Interrupt links the continuation task's interrupt to the given parent
// token.
func (b *ContinuationBuilder) Interrupt(interrupt *Interrupt) *ContinuationBuilder {
	b.interrupt = interrupt
	return b
}

// Plan returns a bare gate task with no body: it completes when the
// continuation fires and is canceled when the antecedents' states do not
// match. Useful as a join point to wait on.
func (b *ContinuationBuilder) Plan() *Task {
	join := newTask(nil, b.name, b.interrupt, false)
	join.inline = true
	b.register(join)
	return join
}

// Run returns a continuation task executing fn with the antecedent
// tasks. The task starts in the Scheduled state and is queued (or run
// inline, per options) when the gate fires.
func (b *ContinuationBuilder) Run(fn func(t *Task, tasks []*Task) (any, error)) *Task {
	tasks := b.tasks
	cont := newTask(func(t *Task) (any, error) { return fn(t, tasks) }, b.name, b.interrupt, false)
	b.register(cont)
	return cont
}

func (b *ContinuationBuilder) register(cont *Task) {
	cont.mu.Lock()
	cont.state = StateScheduled
	cont.mu.Unlock()
	continuations.add(&tasksContinuation{
		gate:    gate{when: b.when, events: doneEvents(b.tasks)},
		tasks:   b.tasks,
		then:    cont,
		options: b.options,
	})
}
