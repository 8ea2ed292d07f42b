package taskflow

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Semaphore is a counting semaphore with the same acquire contract as
// [Lock]. The counting primitive underneath is
// [golang.org/x/sync/semaphore.Weighted]; this type layers the timeout,
// interrupt, and scheduler-suspension behavior on top.
type Semaphore struct {
	sem *semaphore.Weighted
}

// NewSemaphore creates a semaphore with the given number of permits.
// Panics if maxPermits is less than 1.
func NewSemaphore(maxPermits int) *Semaphore {
	if maxPermits < 1 {
		panic(`taskflow: semaphore permits must be at least 1`)
	}
	return &Semaphore{sem: semaphore.NewWeighted(int64(maxPermits))}
}

// Acquire obtains one permit, blocking up to timeout. It returns true on
// acquisition, false on timeout, and a non-nil error if the interrupt
// fired during the wait (or was already signaled, or the timeout was
// negative).
func (s *Semaphore) Acquire(timeout time.Duration, interrupt *Interrupt) (bool, error) {
	if timeout < 0 {
		return false, ErrNegativeTimeout
	}
	if err := interrupt.Err(); err != nil {
		return false, err
	}
	if s.sem.TryAcquire(1) {
		return true, nil
	}
	if timeout == 0 {
		return false, nil
	}
	defer lockWaitStarted()()
	start := time.Now()
	if s.acquireFor(minDuration(timeout, suspendAfter)) {
		return true, nil
	}
	if timeout <= suspendAfter {
		return false, nil
	}
	resume := Current().Suspend()
	defer resume()
	for {
		if err := interrupt.Err(); err != nil {
			return false, err
		}
		rem := remainingTimeout(timeout, start)
		if rem == 0 {
			return false, nil
		}
		if s.acquireFor(minDuration(rem, pollInterval)) {
			return true, nil
		}
	}
}

// acquireFor blocks on the underlying primitive for at most d.
func (s *Semaphore) acquireFor(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.sem.Acquire(ctx, 1) == nil
}

// Release returns one permit. Releasing more permits than were acquired
// returns [ErrNotHeld].
func (s *Semaphore) Release() (err error) {
	defer func() {
		if recover() != nil {
			err = ErrNotHeld
		}
	}()
	s.sem.Release(1)
	return nil
}
