package taskflow

import (
	"errors"
	"io"
	"testing"
)

func TestAggregateErrorFlatten(t *testing.T) {
	inner := NewAggregateError([]error{io.EOF, io.ErrUnexpectedEOF})
	outer := NewAggregateError([]error{inner, io.ErrClosedPipe})

	flat := outer.Flatten()
	if len(flat.Errors) != 3 {
		t.Fatalf(`expected 3 flattened errors, got %d`, len(flat.Errors))
	}
	for _, want := range []error{io.EOF, io.ErrUnexpectedEOF, io.ErrClosedPipe} {
		if !errors.Is(flat, want) {
			t.Fatalf(`expected flattened aggregate to match %v`, want)
		}
	}
}

func TestAggregateErrorHandle(t *testing.T) {
	agg := NewAggregateError([]error{io.EOF, io.ErrClosedPipe})

	if err := agg.Handle(func(error) bool { return true }); err != nil {
		t.Fatalf(`expected nil when every error is handled, got %v`, err)
	}

	err := agg.Handle(func(e error) bool { return errors.Is(e, io.EOF) })
	var rest *AggregateError
	if !errors.As(err, &rest) {
		t.Fatalf(`expected an aggregate of unhandled errors, got %v`, err)
	}
	if len(rest.Errors) != 1 || !errors.Is(rest, io.ErrClosedPipe) {
		t.Fatalf(`expected only the unhandled error to remain, got %v`, rest)
	}
}

func TestAggregateErrorDropsNil(t *testing.T) {
	agg := NewAggregateError([]error{nil, io.EOF, nil})
	if len(agg.Errors) != 1 {
		t.Fatalf(`expected nil entries to be dropped, got %v`, agg.Errors)
	}
}

func TestTaskErrorSentinels(t *testing.T) {
	err := &TaskError{Kind: TaskAlreadyScheduled, Message: `custom message`}
	if !errors.Is(err, ErrTaskAlreadyScheduled) {
		t.Fatal(`expected kind-based matching`)
	}
	if errors.Is(err, ErrTaskCompleted) {
		t.Fatal(`expected different kinds not to match`)
	}
}

func TestPanicErrorUnwrap(t *testing.T) {
	pe := &PanicError{Value: io.EOF}
	if !errors.Is(pe, io.EOF) {
		t.Fatal(`expected error panic values to unwrap`)
	}
	if (&PanicError{Value: `text`}).Unwrap() != nil {
		t.Fatal(`expected non-error panic values not to unwrap`)
	}
}

func TestInterruptErrorMatching(t *testing.T) {
	sig := NewInterruptSignal()
	sig.Signal()
	err := sig.Interrupt().Err()
	var ie *InterruptError
	if !errors.As(err, &ie) {
		t.Fatalf(`expected InterruptError, got %v`, err)
	}
	if !errors.Is(err, &InterruptError{}) {
		t.Fatal(`expected InterruptError values to match by type`)
	}
}
