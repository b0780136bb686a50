package metrics

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Window accumulates per-worker timings across one run.
type Window struct {
	items     int
	durations []float64
}

func (w *Window) Record(items int, d time.Duration) {
	w.items += items
	w.durations = append(w.durations, d.Seconds())
}

// Snapshot returns the aggregated timings and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Workers: len(w.durations), Items: w.items}
	if len(w.durations) == 0 {
		return snap
	}

	sorted := append([]float64(nil), w.durations...)
	sort.Float64s(sorted)

	var busy float64
	for _, d := range sorted {
		busy += d
	}
	if busy > 0 {
		snap.ItemsPerWorkerSec = float64(w.items) / busy
	}
	snap.Mean = seconds(stat.Mean(sorted, nil))
	if len(sorted) > 1 {
		snap.StdDev = seconds(stat.StdDev(sorted, nil))
	}
	snap.Median = seconds(stat.Quantile(0.5, stat.Empirical, sorted, nil))
	snap.P90 = seconds(stat.Quantile(0.9, stat.Empirical, sorted, nil))
	snap.Max = seconds(sorted[len(sorted)-1])

	w.items = 0
	w.durations = w.durations[:0]
	return snap
}

type Snapshot struct {
	Workers int
	Items   int

	// ItemsPerWorkerSec divides items by the summed busy time of all
	// workers, not by the wall time of the run.
	ItemsPerWorkerSec float64
	Mean              time.Duration
	StdDev            time.Duration
	Median            time.Duration
	P90               time.Duration
	Max               time.Duration
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
