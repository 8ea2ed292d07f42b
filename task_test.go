package taskflow

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskRunAddition(t *testing.T) {
	task, err := Run(func(*Task) (any, error) { return 5 + 7, nil })
	if err != nil {
		t.Fatalf(`run: %v`, err)
	}
	result, err := task.Result()
	if err != nil {
		t.Fatalf(`result: %v`, err)
	}
	if result != 12 {
		t.Fatalf(`expected 12, got %v`, result)
	}
	if task.State() != StateCompleted {
		t.Fatalf(`expected Completed, got %v`, task.State())
	}
}

func TestTaskResultNotScheduled(t *testing.T) {
	task := Plan(func(*Task) (any, error) { return nil, nil })
	if _, err := task.Result(); !errors.Is(err, ErrTaskNotScheduled) {
		t.Fatalf(`expected ErrTaskNotScheduled, got %v`, err)
	}
}

func TestTaskScheduleTwice(t *testing.T) {
	gatekeeper := NewEvent()
	task := Plan(func(*Task) (any, error) {
		_, _ = gatekeeper.Wait(time.Second, nil)
		return nil, nil
	})
	if err := task.Schedule(nil); err != nil {
		t.Fatalf(`schedule: %v`, err)
	}
	err := task.Schedule(nil)
	gatekeeper.Signal()
	if !errors.Is(err, ErrTaskAlreadyScheduled) && !errors.Is(err, ErrTaskAlreadyRunning) {
		t.Fatalf(`expected AlreadyScheduled or AlreadyRunning, got %v`, err)
	}

	if _, err := task.Result(); err != nil {
		t.Fatalf(`result: %v`, err)
	}
	if err := task.Schedule(nil); !errors.Is(err, ErrTaskCompleted) {
		t.Fatalf(`expected ErrTaskCompleted after completion, got %v`, err)
	}
}

func TestTaskCancellationClassification(t *testing.T) {
	sig := NewInterruptSignal()
	started := NewEvent()

	task, err := Create().Interrupt(sig.Interrupt()).Run(func(t *Task) (any, error) {
		started.Signal()
		for {
			if err := t.Interrupt().RaiseIfSignaled(); err != nil {
				return nil, err
			}
			time.Sleep(time.Millisecond)
		}
	})
	if err != nil {
		t.Fatalf(`run: %v`, err)
	}

	if ok, _ := started.Wait(time.Second, nil); !ok {
		t.Fatal(`task never started`)
	}
	sig.Signal()

	if _, err := task.done.Wait(time.Second, nil); err != nil {
		t.Fatalf(`wait: %v`, err)
	}
	if task.State() != StateCanceled {
		t.Fatalf(`expected Canceled, got %v`, task.State())
	}
	var ie *InterruptError
	if !errors.As(task.Exception(), &ie) {
		t.Fatalf(`expected InterruptError, got %v`, task.Exception())
	}
	if ie.Interrupt().SignalID() != sig.Interrupt().SignalID() {
		t.Fatal(`expected the stored error to reference the triggering signal`)
	}
}

func TestTaskUnrelatedInterruptFails(t *testing.T) {
	unrelated := NewInterruptSignal()
	unrelated.Signal()

	task, err := Run(func(*Task) (any, error) {
		// A cancellation from a token outside this task's interrupt
		// graph is an ordinary failure.
		return nil, unrelated.Interrupt().Err()
	})
	if err != nil {
		t.Fatalf(`run: %v`, err)
	}
	_, _ = task.done.Wait(time.Second, nil)
	if task.State() != StateFailed {
		t.Fatalf(`expected Failed, got %v`, task.State())
	}
}

func TestTaskPanicBecomesFailure(t *testing.T) {
	task, err := Run(func(*Task) (any, error) { panic(`boom`) })
	if err != nil {
		t.Fatalf(`run: %v`, err)
	}
	_, _ = task.done.Wait(time.Second, nil)
	if task.State() != StateFailed {
		t.Fatalf(`expected Failed, got %v`, task.State())
	}
	var pe *PanicError
	if !errors.As(task.Exception(), &pe) || pe.Value != `boom` {
		t.Fatalf(`expected PanicError("boom"), got %v`, task.Exception())
	}
}

func TestTaskCancelBeforeStart(t *testing.T) {
	task := Plan(func(*Task) (any, error) { return nil, nil })
	task.Cancel()
	if task.State() != StateCanceled {
		t.Fatalf(`expected Canceled, got %v`, task.State())
	}
	if err := task.RunSynchronously(); !errors.Is(err, ErrTaskCanceled) {
		t.Fatalf(`expected ErrTaskCanceled, got %v`, err)
	}
}

func TestTaskWaitRaisesFailure(t *testing.T) {
	errBoom := errors.New(`boom`)
	task, _ := Run(func(*Task) (any, error) { return nil, errBoom })
	_, err := task.Wait(time.Second, nil)
	if !errors.Is(err, errBoom) {
		t.Fatalf(`expected stored failure from Wait, got %v`, err)
	}
	// Repeated access re-raises the same instance.
	if _, err2 := task.Result(); !errors.Is(err2, errBoom) || err2 != err {
		t.Fatalf(`expected the identical error instance, got %v`, err2)
	}
}

func TestTaskLazyResult(t *testing.T) {
	var ran atomic.Bool
	task := Create().Lazy().Plan(func(*Task) (any, error) {
		ran.Store(true)
		return `lazy`, nil
	})
	if task.State() != StateNotStarted {
		t.Fatal(`expected lazy task to stay unscheduled`)
	}
	result, err := task.Result()
	if err != nil {
		t.Fatalf(`result: %v`, err)
	}
	if result != `lazy` || !ran.Load() {
		t.Fatal(`expected demand to run the lazy task`)
	}
}

func TestTaskFromResult(t *testing.T) {
	task := FromResult(42)
	if task.State() != StateCompleted {
		t.Fatalf(`expected Completed, got %v`, task.State())
	}
	result, err := task.Result()
	if err != nil || result != 42 {
		t.Fatalf(`expected 42, got %v %v`, result, err)
	}
}

func TestTaskCurrentAndParent(t *testing.T) {
	task, _ := Run(func(t *Task) (any, error) { return CurrentTask(), nil })
	result, err := task.Result()
	if err != nil {
		t.Fatalf(`result: %v`, err)
	}
	if result != task {
		t.Fatal(`expected CurrentTask to be the running task`)
	}

	outer, _ := Run(func(t *Task) (any, error) {
		child, err := Run(func(c *Task) (any, error) { return c.Parent(), nil })
		if err != nil {
			return nil, err
		}
		return child.Result()
	})
	result, err = outer.Result()
	if err != nil {
		t.Fatalf(`result: %v`, err)
	}
	if result != outer {
		t.Fatal(`expected the child's parent to be the outer task`)
	}
}

func TestContinueWithSuccess(t *testing.T) {
	task, _ := Run(func(*Task) (any, error) { return 10, nil })
	cont := task.ContinueWith(OnCompletedSuccessfully, func(_, antecedent *Task) (any, error) {
		v, err := antecedent.Result()
		if err != nil {
			return nil, err
		}
		return v.(int) * 2, nil
	})
	result, err := cont.Result()
	if err != nil {
		t.Fatalf(`result: %v`, err)
	}
	if result != 20 {
		t.Fatalf(`expected 20, got %v`, result)
	}
}

func TestContinueWithNonMatchingStateCancels(t *testing.T) {
	task, _ := Run(func(*Task) (any, error) { return nil, errors.New(`boom`) })
	cont := task.ContinueWith(OnCompletedSuccessfully, func(_, _ *Task) (any, error) {
		t.Error(`continuation must not run`)
		return nil, nil
	})
	_, _ = cont.done.Wait(time.Second, nil)
	if cont.State() != StateCanceled {
		t.Fatalf(`expected Canceled, got %v`, cont.State())
	}
}

func TestWithAllMixedStatesCancelsContinuation(t *testing.T) {
	a, _ := Run(func(*Task) (any, error) { return 1, nil })
	b, _ := Run(func(*Task) (any, error) { return nil, errors.New(`boom`) })

	cont := WithAll([]*Task{a, b}, OnCompletedSuccessfully).Run(func(_ *Task, tasks []*Task) (any, error) {
		t.Error(`continuation must not run`)
		return nil, nil
	})
	_, _ = cont.done.Wait(time.Second, nil)
	if cont.State() != StateCanceled {
		t.Fatalf(`expected Canceled, got %v`, cont.State())
	}
}

func TestWithAllSuccess(t *testing.T) {
	a, _ := Run(func(*Task) (any, error) { return 1, nil })
	b, _ := Run(func(*Task) (any, error) { return 2, nil })

	cont := WithAll([]*Task{a, b}, OnCompletedSuccessfully).Run(func(_ *Task, tasks []*Task) (any, error) {
		sum := 0
		for _, task := range tasks {
			v, err := task.Result()
			if err != nil {
				return nil, err
			}
			sum += v.(int)
		}
		return sum, nil
	})
	result, err := cont.Result()
	if err != nil {
		t.Fatalf(`result: %v`, err)
	}
	if result != 3 {
		t.Fatalf(`expected 3, got %v`, result)
	}
}

func TestWithAnyFirstMatchRuns(t *testing.T) {
	slowGate := NewEvent()
	slow, _ := Run(func(*Task) (any, error) {
		_, _ = slowGate.Wait(time.Second, nil)
		return `slow`, nil
	})
	fast, _ := Run(func(*Task) (any, error) { return `fast`, nil })

	cont := WithAny([]*Task{slow, fast}, OnCompletedSuccessfully).Run(func(*Task, []*Task) (any, error) {
		return `fired`, nil
	})
	result, err := cont.Result()
	slowGate.Signal()
	if err != nil {
		t.Fatalf(`result: %v`, err)
	}
	if result != `fired` {
		t.Fatalf(`expected "fired", got %v`, result)
	}
}

func TestWithAnyAllNonMatchingCancels(t *testing.T) {
	a, _ := Run(func(*Task) (any, error) { return nil, errors.New(`a`) })
	b, _ := Run(func(*Task) (any, error) { return nil, errors.New(`b`) })

	cont := WithAny([]*Task{a, b}, OnCompletedSuccessfully).Plan()
	_, _ = cont.done.Wait(time.Second, nil)
	if cont.State() != StateCanceled {
		t.Fatalf(`expected Canceled, got %v`, cont.State())
	}
}

func TestWaitAllTasksAggregatesFailures(t *testing.T) {
	errA, errB := errors.New(`a`), errors.New(`b`)
	a, _ := Run(func(*Task) (any, error) { return nil, errA })
	b, _ := Run(func(*Task) (any, error) { return nil, errB })
	c, _ := Run(func(*Task) (any, error) { return nil, nil })

	fired, err := WaitAllTasks([]*Task{a, b, c}, time.Second, false, nil)
	if !fired {
		t.Fatal(`expected tasks to finish`)
	}
	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf(`expected AggregateError, got %v`, err)
	}
	if len(agg.Errors) != 2 || !errors.Is(agg, errA) || !errors.Is(agg, errB) {
		t.Fatalf(`expected both failures aggregated, got %v`, agg)
	}
}

func TestWaitAllTasksFailOnCancel(t *testing.T) {
	canceled := Plan(func(*Task) (any, error) { return nil, nil })
	canceled.Cancel()
	ok, _ := Run(func(*Task) (any, error) { return nil, nil })

	_, err := WaitAllTasks([]*Task{canceled, ok}, time.Second, true, nil)
	if !errors.Is(err, ErrAwaitedTaskCanceled) {
		t.Fatalf(`expected ErrAwaitedTaskCanceled, got %v`, err)
	}
}

func TestWaitAnyTasksTimeout(t *testing.T) {
	gatekeeper := NewEvent()
	defer gatekeeper.Signal()
	slow, _ := Run(func(*Task) (any, error) {
		_, _ = gatekeeper.Wait(time.Second, nil)
		return nil, nil
	})
	fired, err := WaitAnyTasks([]*Task{slow}, 10*time.Millisecond, false, nil)
	if err != nil || fired {
		t.Fatalf(`expected timeout, got %v %v`, fired, err)
	}
}

func TestTaskStateTransitionTable(t *testing.T) {
	legal := map[TaskState][]TaskState{
		StateNotStarted: {StateScheduled, StateRunning, StateCanceled},
		StateScheduled:  {StateRunning, StateCanceled},
		StateRunning:    {StateCompleted, StateFailed, StateCanceled},
	}
	states := []TaskState{
		StateNotStarted, StateScheduled, StateRunning,
		StateCompleted, StateFailed, StateCanceled,
	}
	for _, from := range states {
		for _, to := range states {
			want := false
			for _, ok := range legal[from] {
				if ok == to {
					want = true
				}
			}
			if got := canTransition(from, to); got != want {
				t.Errorf(`transition %v -> %v: got %v, want %v`, from, to, got, want)
			}
		}
	}
}
