package parallel

import (
	"sync"

	taskflow "github.com/joeycumines/go-taskflow"
)

// Distributor fans every input item out to N independent downstream
// consumers with shared failure and cancellation semantics. Register
// consumers with [Distributor.Take], then seal the graph and launch the
// feeder with [Distributor.Start]; both fail with
// [ErrDistributionStarted] afterwards.
type Distributor[T any] struct {
	in   Iterable[T]
	outs []*ProducerConsumerQueue[T]
	mu   sync.Mutex
	// sealed is set by Start; the fan-out graph is immutable afterwards.
	sealed bool
}

// Distribute creates a distributor over the given input.
func Distribute[T any](items Iterable[T]) *Distributor[T] {
	return &Distributor[T]{in: items}
}

// Take adds a downstream consumer to the fan-out graph, returning its
// iterator. Every consumer receives every input item.
func (d *Distributor[T]) Take() (*QueueIterator[T], error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sealed {
		return nil, ErrDistributionStarted
	}
	q := NewProducerConsumerQueue[T]()
	d.outs = append(d.outs, q)
	return q.Iterator(), nil
}

// Start seals the graph and launches the feeder. The feeder's success
// completes every downstream queue; its failure fails them with the
// aggregated error; its cancellation fails them with the cancellation
// error carrying the triggering token.
func (d *Distributor[T]) Start(interrupt *taskflow.Interrupt) error {
	d.mu.Lock()
	if d.sealed {
		d.mu.Unlock()
		return ErrDistributionStarted
	}
	d.sealed = true
	outs := d.outs
	d.mu.Unlock()

	cfg := resolveOptions(&Options{Interrupt: interrupt})
	feeders := spawnConsumers(d.in.Iterator(), cfg, func(t *taskflow.Task, item T) error {
		if err := t.Interrupt().RaiseIfSignaled(); err != nil {
			return err
		}
		for _, q := range outs {
			if err := q.Put(item); err != nil {
				return err
			}
		}
		return nil
	})

	taskflow.WithAll(feeders, taskflow.OnCompletedSuccessfully|taskflow.ContinueInline).
		Run(func(*taskflow.Task, []*taskflow.Task) (any, error) {
			for _, q := range outs {
				_ = q.Complete()
			}
			return nil, nil
		})
	taskflow.WithAny(feeders, taskflow.OnFailed|taskflow.ContinueInline).
		Run(func(_ *taskflow.Task, tasks []*taskflow.Task) (any, error) {
			err := aggregateFailures(tasks)
			for _, q := range outs {
				_ = q.FailIfNotComplete(err)
			}
			return nil, nil
		})
	taskflow.WithAny(feeders, taskflow.OnCanceled|taskflow.ContinueInline).
		Run(func(*taskflow.Task, []*taskflow.Task) (any, error) {
			err := taskflow.NewInterruptError(cfg.interrupt)
			for _, q := range outs {
				_ = q.FailIfNotComplete(err)
			}
			return nil, nil
		})
	return nil
}
