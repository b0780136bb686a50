package knn

import (
	"fmt"
	"math"
)

type neighbor struct {
	distance float64
	label    uint8
}

type Classifier struct {
	training *Dataset
	k        int
}

func NewClassifier(training *Dataset, k int) (*Classifier, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be > 0 (got %d)", ErrInvalidArgument, k)
	}
	if training.Len() == 0 {
		return nil, fmt.Errorf("%w: empty training set", ErrInvalidArgument)
	}
	if err := training.Validate(); err != nil {
		return nil, fmt.Errorf("%w: training set: %w", ErrInvalidArgument, err)
	}
	return &Classifier{training: training, k: k}, nil
}

func (c *Classifier) K() int {
	return c.k
}

// Accepts reports whether every image of testing can be compared against the
// training set.
func (c *Classifier) Accepts(testing *Dataset) error {
	if err := testing.Validate(); err != nil {
		return fmt.Errorf("%w: testing set: %w", ErrInvalidArgument, err)
	}
	if testing.Len() == 0 {
		return nil
	}
	want, got := c.training.Images[0], testing.Images[0]
	if want.Width != got.Width || want.Height != got.Height {
		return fmt.Errorf("%w: testing images are %dx%d, training images are %dx%d",
			ErrInvalidArgument, got.Width, got.Height, want.Width, want.Height)
	}
	return nil
}

// Predict classifies query, which must have the training images' dimensions.
func (c *Classifier) Predict(query Image) int {
	return Predict(c.training, query, c.k)
}

// Distance returns the Euclidean distance between two images of equal size.
func Distance(a, b Image) float64 {
	var sum float64
	for i := range a.Pixels {
		d := int(b.Pixels[i]) - int(a.Pixels[i])
		sum += float64(d * d)
	}
	return math.Sqrt(sum)
}

// Predict returns the majority label among the k training images closest to
// query. The caller guarantees k > 0.
func Predict(training *Dataset, query Image, k int) int {
	nearest := make([]neighbor, 0, k)

	for i, img := range training.Images {
		d := Distance(img, query)
		if len(nearest) < k {
			nearest = append(nearest, neighbor{distance: d, label: training.Labels[i]})
			continue
		}
		if idx, ok := replaceable(nearest, d); ok {
			nearest[idx] = neighbor{distance: d, label: training.Labels[i]}
		}
	}

	return majorityLabel(nearest)
}

// replaceable finds the candidate to evict for a new distance d: the first
// candidate farther than d, refined to the farthest candidate after it.
// Equal distances never replace, so the earlier training item wins ties.
func replaceable(nearest []neighbor, d float64) (int, bool) {
	idx := 0
	found := false
	for i, n := range nearest {
		if !found && n.distance > d {
			idx = i
			found = true
		} else if found && n.distance > nearest[idx].distance {
			idx = i
		}
	}
	return idx, found
}

func majorityLabel(nearest []neighbor) int {
	var votes [NumLabels]int
	for _, n := range nearest {
		votes[n.label]++
	}

	// strict comparison: the lowest label among equal counts wins
	best := 0
	for label := 1; label < NumLabels; label++ {
		if votes[label] > votes[best] {
			best = label
		}
	}
	return best
}
