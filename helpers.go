package taskflow

import "time"

// Acquirer is the acquire/release contract shared by [Lock] and
// [Semaphore].
type Acquirer interface {
	Acquire(timeout time.Duration, interrupt *Interrupt) (bool, error)
	Release() error
}

// AcquireOrFail acquires l within timeout or returns the error produced
// by fail. On success it returns a release function, guaranteeing the
// caller a single release point on all exit paths:
//
//	release, err := taskflow.AcquireOrFail(lock, time.Second, func() error {
//	    return errors.New("state lock busy")
//	}, interrupt)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
// An interrupt firing during the wait is returned as-is, not passed to
// fail.
func AcquireOrFail(l Acquirer, timeout time.Duration, fail func() error, interrupt *Interrupt) (func(), error) {
	ok, err := l.Acquire(timeout, interrupt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fail()
	}
	return func() { _ = l.Release() }, nil
}
