// Package taskflow implements an in-process task runtime with
// promise/future style tasks, cooperative scheduling, and interrupt-based
// cancellation.
//
// The package provides three layers, each usable on its own:
//
//   - Synchronization primitives: [Event], [AutoClearEvent], [Lock],
//     [Semaphore], and the unbounded FIFO [Queue], all sharing an
//     interrupt-aware, timeout-aware blocking contract.
//   - Cancellation: [InterruptSignal] owns an [Interrupt] token; tokens
//     link into a graph and signaling propagates transitively, stamping
//     every reached token with the same signal id.
//   - Tasks and schedulers: [Task] is a unit of deferred work with a
//     strict lifecycle state machine, a result slot, and a completion
//     event; [ConcurrentTaskScheduler] runs tasks on a bounded pool of
//     worker goroutines, replacing workers that suspend on a blocking
//     primitive so the pool never starves.
//
// Blocking operations take an explicit timeout and an optional
// *Interrupt. [Forever] means wait indefinitely, zero means do not block,
// and negative timeouts are rejected. A nil *Interrupt is a valid token
// that is never signaled.
//
// The parallel dataflow layer (producer/consumer queues, pipeline
// operators, fan-out) lives in the parallel subpackage.
package taskflow
