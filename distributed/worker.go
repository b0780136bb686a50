package distributed

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Rocketeer8/Number-Classifier/knn"
)

// Worker classifies one assignment of the testing set against the full
// training set. The datasets are only read.
type Worker struct {
	runner   *knn.Runner
	workerID string
	verbose  bool
}

func NewWorker(workerID string, training, testing *knn.Dataset, k int) (*Worker, error) {
	classifier, err := knn.NewClassifier(training, k)
	if err != nil {
		return nil, err
	}
	if err := classifier.Accepts(testing); err != nil {
		return nil, err
	}
	return &Worker{
		runner:   knn.NewRunner(classifier, testing),
		workerID: workerID,
	}, nil
}

func (w *Worker) SetVerbose(v bool) {
	w.verbose = v
}

func (w *Worker) Run(ctx context.Context, a Assignment) (int, error) {
	start := time.Now()
	correct, err := w.runner.Run(ctx, a.Start, a.Count)
	if err != nil {
		return 0, fmt.Errorf("worker %s: %w", w.workerID, err)
	}
	if w.verbose {
		log.Printf("worker=%s start=%d count=%d correct=%d elapsed=%s",
			w.workerID, a.Start, a.Count, correct, time.Since(start).Round(time.Millisecond))
	}
	return correct, nil
}

// Serve runs one exchange of the worker protocol: read the assignment from
// in, classify it, write the correct count to out.
func (w *Worker) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	a, err := ReadAssignment(in)
	if err != nil {
		return fmt.Errorf("worker %s: %w", w.workerID, err)
	}

	correct, err := w.Run(ctx, a)
	if err != nil {
		return err
	}

	if err := WriteResult(out, correct); err != nil {
		return fmt.Errorf("worker %s: %w", w.workerID, err)
	}
	return nil
}
