// Package parallel provides the dataflow layer on top of taskflow:
// producer/consumer queues with monotonic completion and failure,
// composable pipeline stages (Fn, Filter, Fork, Chain), fan-out
// distribution, and the high-level Background / ForEach / Map / Process
// entry points.
//
// Inputs flow as [Iterable] values: wrap a slice with [Items], or feed
// the output iterator of one stage into the next (iterators and queues
// are interchangeable as inputs). Completion, failure, and cancellation
// of a stage collapse deterministically onto its output queue, so a
// downstream consumer blocked in [QueueIterator.Next] always learns how
// the upstream ended.
//
// A [ParallelContext] entered on a goroutine supplies the default
// scheduler, parallelism, and interrupt for every operator built on that
// goroutine while the context is active, so nested parallelism inherits
// interrupt propagation.
package parallel
