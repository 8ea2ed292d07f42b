package taskflow

import "sync/atomic"

// Debug inventories. The lock-wait counter is disabled by default; tests
// enable it to assert that no lock waits leak. The continuation registry
// count is read from the live registry and is not gated by the debug flag.

var (
	debugEnabled atomic.Bool
	lockWaits    atomic.Int64
)

// SetDebug toggles the debug inventories.
func SetDebug(enabled bool) { debugEnabled.Store(enabled) }

// DebugEnabled reports whether the debug inventories are collecting.
func DebugEnabled() bool { return debugEnabled.Load() }

// PendingContinuations returns the number of registered
// (event, continuation) pairs. Unlike the counters, this is always
// available: it reads the live registry.
func PendingContinuations() int { return continuations.pending() }

// PendingLockWaits returns the number of goroutines currently blocked
// acquiring a [Lock] or [Semaphore]. Only counted while debug is
// enabled.
func PendingLockWaits() int { return int(lockWaits.Load()) }

// lockWaitStarted records a blocking acquisition attempt, returning the
// matching un-record func so toggling debug mid-wait cannot skew the
// counter.
func lockWaitStarted() func() {
	if !debugEnabled.Load() {
		return func() {}
	}
	lockWaits.Add(1)
	return func() { lockWaits.Add(-1) }
}
