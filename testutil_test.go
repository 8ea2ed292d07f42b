package taskflow

import (
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf(`condition not met within %v: %s`, timeout, msg)
}

// newTestScheduler returns a scheduler with a short keep-alive, closed
// on test cleanup.
func newTestScheduler(t *testing.T, maxParallelism int) *ConcurrentTaskScheduler {
	t.Helper()
	s := NewConcurrentTaskScheduler(&SchedulerConfig{
		MaxParallelism: maxParallelism,
		KeepAlive:      20 * time.Millisecond,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}
