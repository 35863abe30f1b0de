package ocr

import (
	"context"
	"errors"
	"testing"
)

// scriptedEngine plays back a fixed sequence of results and an optional
// terminal error, mimicking a backend that finishes pages out of order.
type scriptedEngine struct {
	results []PageResult
	err     error
	failAt  int // deliver err after this many results when err != nil
}

func (s *scriptedEngine) Name() string                { return "scripted" }
func (s *scriptedEngine) Start(context.Context) error { return nil }
func (s *scriptedEngine) Send(Job) error              { return nil }
func (s *scriptedEngine) Stop() error                 { return nil }

func (s *scriptedEngine) Collect(ctx context.Context, expected int) (<-chan PageResult, <-chan error) {
	results := make(chan PageResult)
	errs := make(chan error)
	go func() {
		defer close(errs)
		defer close(results)
		sent := 0
		for _, r := range s.results {
			if sent == expected || (s.err != nil && sent == s.failAt) {
				break
			}
			select {
			case results <- r:
				sent++
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if s.err != nil {
			errs <- s.err
		}
	}()
	return results, errs
}

func page(idx int, text string) PageResult {
	return PageResult{
		PageIndex: idx,
		Width:     100,
		Height:    100,
		Items:     []TextItem{{Text: text, BBox: BoundingBox{X: 0.1, Y: 0.1, W: 0.5, H: 0.1}, Confidence: 0.9}},
	}
}

func TestGatherRestoresPageOrder(t *testing.T) {
	eng := &scriptedEngine{results: []PageResult{page(2, "c"), page(0, "a"), page(1, "b")}}
	got, err := Gather(context.Background(), eng, 3)
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	for i, r := range got {
		if r.PageIndex != i {
			t.Fatalf("result %d has page index %d", i, r.PageIndex)
		}
	}
}

func TestGatherStableForEqualIndexes(t *testing.T) {
	eng := &scriptedEngine{results: []PageResult{page(1, "first"), page(0, "zero"), page(1, "second")}}
	got, err := Gather(context.Background(), eng, 3)
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if got[1].Items[0].Text != "first" || got[2].Items[0].Text != "second" {
		t.Fatalf("equal indexes lost arrival order: %q then %q", got[1].Items[0].Text, got[2].Items[0].Text)
	}
}

func TestGatherKeepsPartialResultsOnFailure(t *testing.T) {
	want := &ExitError{Collected: 1, Expected: 3}
	eng := &scriptedEngine{
		results: []PageResult{page(0, "a"), page(1, "b"), page(2, "c")},
		err:     want,
		failAt:  1,
	}
	got, err := Gather(context.Background(), eng, 3)
	if err == nil {
		t.Fatal("expected an error")
	}
	var exit *ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("expected ExitError, got %T: %v", err, err)
	}
	if exit.Collected != 1 {
		t.Fatalf("expected 1 collected, got %d", exit.Collected)
	}
	if len(got) != 1 || got[0].PageIndex != 0 {
		t.Fatalf("expected the one finished result, got %+v", got)
	}
}

func TestGatherZeroExpected(t *testing.T) {
	got, err := Gather(context.Background(), &scriptedEngine{}, 0)
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if got != nil {
		t.Fatalf("expected no results, got %+v", got)
	}
}
