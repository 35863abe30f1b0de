package ocr

import (
	"context"
	"sort"
)

// Gather drains a full batch from the engine and returns the results in page
// order. Engines deliver completion order; Gather restores page order with a
// stable sort, so results for a repeated index keep their arrival order.
//
// On a terminal engine error Gather returns the results collected so far
// together with the error, letting callers keep partial output.
func Gather(ctx context.Context, engine Engine, expected int) ([]PageResult, error) {
	if expected <= 0 {
		return nil, nil
	}
	results, errs := engine.Collect(ctx, expected)
	out := make([]PageResult, 0, expected)
	sortByPage := func() {
		sort.SliceStable(out, func(i, j int) bool { return out[i].PageIndex < out[j].PageIndex })
	}
	for {
		select {
		case r, ok := <-results:
			if !ok {
				sortByPage()
				return out, nil
			}
			out = append(out, r)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// drain results that finished before the failure
			for r := range results {
				out = append(out, r)
			}
			sortByPage()
			return out, err
		}
	}
}
