package distributed

import "fmt"

// Assignment is the contiguous slice of the testing set given to one worker.
type Assignment struct {
	Start int
	Count int
}

func (a Assignment) End() int {
	return a.Start + a.Count
}

// ComputeAssignments splits testSetSize items across numWorkers workers in
// chunks of n = ceil(testSetSize/numWorkers). Worker i starts at i*n. The
// worker at index testSetSize/n takes the remainder (possibly zero) and every
// worker after it gets nothing.
func ComputeAssignments(testSetSize, numWorkers int) ([]Assignment, error) {
	if numWorkers <= 0 {
		return nil, fmt.Errorf("%w: number of workers must be > 0 (got %d)", ErrInvalidArgument, numWorkers)
	}
	if testSetSize < 0 {
		return nil, fmt.Errorf("%w: negative testing set size %d", ErrInvalidArgument, testSetSize)
	}

	n := (testSetSize + numWorkers - 1) / numWorkers
	remainder, remainderWorker := 0, 0
	if n != 0 {
		remainder = testSetSize % n
		remainderWorker = testSetSize / n
	}

	assignments := make([]Assignment, numWorkers)
	for i := range assignments {
		a := Assignment{Start: i * n}
		switch {
		case n == 0 || i > remainderWorker:
			a.Count = 0
		case i == remainderWorker:
			a.Count = remainder
		default:
			a.Count = n
		}
		assignments[i] = a
	}
	return assignments, nil
}
