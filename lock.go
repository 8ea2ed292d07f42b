package taskflow

import (
	"sync"
	"time"

	"github.com/joeycumines/go-taskflow/internal/goid"
)

// Lock is a mutual-exclusion lock with timeout- and interrupt-aware
// acquisition. Construct with [NewLock] (non-reentrant) or
// [NewReentrantLock] (the same goroutine may acquire it repeatedly,
// releasing once per acquire).
//
// Acquire follows the shared blocking contract: a short direct wait
// first, then the current scheduler is informed the worker is suspending
// and the wait continues in interrupt-polling slices.
type Lock struct {
	ch        chan struct{} // 1-buffered; holding the slot is holding the lock
	mu        sync.Mutex    // guards owner/count
	owner     uint64
	count     int
	reentrant bool
}

// NewLock creates a non-reentrant lock.
func NewLock() *Lock {
	return &Lock{ch: make(chan struct{}, 1)}
}

// NewReentrantLock creates a reentrant lock.
func NewReentrantLock() *Lock {
	return &Lock{ch: make(chan struct{}, 1), reentrant: true}
}

// Acquire obtains the lock, blocking up to timeout. It returns true on
// acquisition, false on timeout, and a non-nil error if the interrupt
// fired during the wait (or was already signaled, or the timeout was
// negative).
func (l *Lock) Acquire(timeout time.Duration, interrupt *Interrupt) (bool, error) {
	if timeout < 0 {
		return false, ErrNegativeTimeout
	}
	if err := interrupt.Err(); err != nil {
		return false, err
	}
	gid := goid.ID()
	if l.reentrant {
		l.mu.Lock()
		if l.count > 0 && l.owner == gid {
			l.count++
			l.mu.Unlock()
			return true, nil
		}
		l.mu.Unlock()
	}
	select {
	case l.ch <- struct{}{}:
		l.acquired(gid)
		return true, nil
	default:
	}
	if timeout == 0 {
		return false, nil
	}
	defer lockWaitStarted()()
	start := time.Now()
	ok, err := l.tryWait(minDuration(timeout, suspendAfter), interrupt)
	if err != nil {
		return false, err
	}
	if ok {
		l.acquired(gid)
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
		ok, err := l.tryWait(minDuration(rem, pollInterval), interrupt)
		if err != nil {
			return false, err
		}
		if ok {
			l.acquired(gid)
			return true, nil
		}
	}
}

func (l *Lock) tryWait(timeout time.Duration, interrupt *Interrupt) (bool, error) {
	intCh := interrupt.signaledChan()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case l.ch <- struct{}{}:
		return true, nil
	case <-t.C:
		return false, nil
	case <-intCh:
		return false, interrupt.Err()
	}
}

func (l *Lock) acquired(gid uint64) {
	if l.reentrant {
		l.mu.Lock()
		l.owner = gid
		l.count = 1
		l.mu.Unlock()
	}
}

// Release releases the lock. It returns [ErrNotHeld] when the lock is
// not held, or (for a reentrant lock) not held by this goroutine.
func (l *Lock) Release() error {
	if l.reentrant {
		l.mu.Lock()
		if l.count == 0 || l.owner != goid.ID() {
			l.mu.Unlock()
			return ErrNotHeld
		}
		l.count--
		if l.count > 0 {
			l.mu.Unlock()
			return nil
		}
		l.owner = 0
		l.mu.Unlock()
	}
	select {
	case <-l.ch:
		return nil
	default:
		return ErrNotHeld
	}
}
