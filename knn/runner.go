package knn

import (
	"context"
	"fmt"
)

// Runner counts correct predictions of a classifier over slices of a
// testing set.
type Runner struct {
	classifier *Classifier
	testing    *Dataset
}

func NewRunner(c *Classifier, testing *Dataset) *Runner {
	return &Runner{
		classifier: c,
		testing:    testing,
	}
}

// Run classifies testing items [start, start+count) and returns how many
// predictions match their label. ctx is checked between items.
func (r *Runner) Run(ctx context.Context, start, count int) (int, error) {
	if start < 0 || count < 0 {
		return 0, fmt.Errorf("%w: range start=%d count=%d", ErrInvalidArgument, start, count)
	}
	if count == 0 {
		return 0, nil
	}
	if start+count > r.testing.Len() {
		return 0, fmt.Errorf("%w: range [%d, %d) exceeds %d testing items",
			ErrInvalidArgument, start, start+count, r.testing.Len())
	}

	correct := 0
	for i := start; i < start+count; i++ {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		if r.classifier.Predict(r.testing.Images[i]) == int(r.testing.Labels[i]) {
			correct++
		}
	}
	return correct, nil
}

// RunAll classifies the whole testing set sequentially.
func (r *Runner) RunAll(ctx context.Context) (int, error) {
	return r.Run(ctx, 0, r.testing.Len())
}
