package distributed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rocketeer8/Number-Classifier/knn"
	"github.com/Rocketeer8/Number-Classifier/metrics"
)

var (
	ErrWorkerFailed  = errors.New("worker failed")
	ErrWorkerTimeout = errors.New("worker timed out")
)

const defaultPollInterval = time.Second

type Config struct {
	K          int
	NumWorkers int
	// Timeout bounds how long a single worker may run before the whole run
	// is aborted. Zero means defaultTimeout.
	Timeout time.Duration
	Verbose bool
}

func (c Config) Validate() error {
	if c.K <= 0 {
		return fmt.Errorf("%w: k must be > 0 (got %d)", ErrInvalidArgument, c.K)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("%w: number of workers must be > 0 (got %d)", ErrInvalidArgument, c.NumWorkers)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidArgument, c.Timeout)
	}
	return nil
}

type WorkerResult struct {
	WorkerID   string
	Assignment Assignment
	Correct    int
	Duration   time.Duration
}

type Report struct {
	RunID   string
	Total   int
	Workers []WorkerResult
	Timing  metrics.Snapshot
	Elapsed time.Duration
}

// ItemsPerSec is the wall-clock throughput of the run.
func (r *Report) ItemsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Timing.Items) / r.Elapsed.Seconds()
}

type Coordinator struct {
	launcher     Launcher
	tracker      *TaskTracker
	cfg          Config
	pollInterval time.Duration
	mu           sync.Mutex
	running      bool
}

func NewCoordinator(cfg Config, launcher Launcher) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if launcher == nil {
		return nil, fmt.Errorf("%w: nil launcher", ErrInvalidArgument)
	}
	return &Coordinator{
		launcher:     launcher,
		tracker:      NewTaskTracker(cfg.Timeout),
		cfg:          cfg,
		pollInterval: defaultPollInterval,
	}, nil
}

type outcome struct {
	err      error
	workerID string
	correct  int
}

// Run partitions testSetSize items across the configured number of workers,
// launches one unit per assignment and sums the counts they return. Any
// failed, silent or misbehaving worker aborts the run.
func (c *Coordinator) Run(ctx context.Context, testSetSize int) (*Report, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, errors.New("coordinator is already running")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	assignments, err := ComputeAssignments(testSetSize, c.cfg.NumWorkers)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	started := time.Now()
	log.Printf("run=%s items=%d workers=%d k=%d", runID, testSetSize, len(assignments), c.cfg.K)

	ctx, cancel := context.WithCancel(ctx)
	var (
		wg    sync.WaitGroup
		units []*Unit
	)
	defer func() {
		cancel()
		for _, u := range units {
			u.Stop()
		}
		wg.Wait()
	}()

	c.tracker.InitTasks(assignments)
	outcomes := make(chan outcome, len(assignments))

	for i, a := range assignments {
		workerID := uuid.NewString()
		unit, err := c.launcher.Launch(ctx, workerID)
		if err != nil {
			return nil, fmt.Errorf("launch worker %d: %w", i, err)
		}
		units = append(units, unit)
		if _, err := c.tracker.AssignTask(i, workerID); err != nil {
			return nil, err
		}
		if c.cfg.Verbose {
			log.Printf("run=%s worker=%s start=%d count=%d", runID, workerID, a.Start, a.Count)
		}

		wg.Add(1)
		go func(unit *Unit, a Assignment) {
			defer wg.Done()
			correct, err := exchange(unit, a)
			outcomes <- outcome{workerID: unit.ID, correct: correct, err: err}
		}(unit, a)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	total := 0
	for received := 0; received < len(assignments); {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("run %s: %w", runID, ctx.Err())
		case <-ticker.C:
			if overdue := c.tracker.CheckTimeouts(); len(overdue) > 0 {
				task := overdue[0]
				c.tracker.MarkFailed(task.Metadata.WorkerID, ErrWorkerTimeout)
				return nil, fmt.Errorf("%w: worker %s (start=%d count=%d) sent no result within %s",
					ErrWorkerTimeout, task.Metadata.WorkerID, task.Assignment.Start, task.Assignment.Count, c.tracker.timeout)
			}
		case o := <-outcomes:
			received++
			if o.err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("run %s: %w", runID, ctx.Err())
				}
				c.tracker.MarkFailed(o.workerID, o.err)
				return nil, o.err
			}
			if _, err := c.tracker.MarkComplete(o.workerID, o.correct); err != nil {
				return nil, err
			}
			total += o.correct
		}
	}

	report := c.report(runID, total)
	report.Elapsed = time.Since(started)
	log.Printf("run=%s total=%d elapsed=%s items_per_sec=%.1f items_per_worker_sec=%.1f worker_mean=%s worker_p90=%s worker_max=%s",
		runID, report.Total, report.Elapsed.Round(time.Millisecond),
		report.ItemsPerSec(), report.Timing.ItemsPerWorkerSec,
		report.Timing.Mean.Round(time.Millisecond),
		report.Timing.P90.Round(time.Millisecond),
		report.Timing.Max.Round(time.Millisecond))
	return report, nil
}

func (c *Coordinator) report(runID string, total int) *Report {
	var window metrics.Window
	report := &Report{RunID: runID, Total: total}
	for _, task := range c.tracker.Tasks() {
		d := task.Duration()
		window.Record(task.Assignment.Count, d)
		report.Workers = append(report.Workers, WorkerResult{
			WorkerID:   task.Metadata.WorkerID,
			Assignment: task.Assignment,
			Correct:    task.Correct,
			Duration:   d,
		})
	}
	report.Timing = window.Snapshot()
	return report
}

// exchange performs the coordinator side of the protocol with one unit and
// waits for it to terminate. An abnormal termination takes precedence over
// any transfer error it caused.
func exchange(u *Unit, a Assignment) (int, error) {
	xferErr := WriteAssignment(u.In, a)
	if err := u.In.Close(); err != nil && xferErr == nil {
		xferErr = fmt.Errorf("%w: close assignment channel: %v", ErrProtocol, err)
	}

	var correct int
	if xferErr == nil {
		correct, xferErr = ReadResult(u.Out)
	}

	if err := u.Wait(); err != nil {
		return 0, fmt.Errorf("%w: worker %s: %v", ErrWorkerFailed, u.ID, err)
	}
	if xferErr != nil {
		return 0, fmt.Errorf("worker %s: %w", u.ID, xferErr)
	}
	if correct > a.Count {
		return 0, fmt.Errorf("%w: worker %s reported %d correct out of %d", ErrProtocol, u.ID, correct, a.Count)
	}
	return correct, nil
}

// RunAll classifies testing against training with numWorkers goroutine
// workers and returns the number of correct predictions.
func RunAll(ctx context.Context, training, testing *knn.Dataset, k, numWorkers int) (int, error) {
	// fail before any unit starts
	if _, err := NewWorker("", training, testing, k); err != nil {
		return 0, err
	}
	launcher := &InProcessLauncher{Training: training, Testing: testing, K: k}
	c, err := NewCoordinator(Config{K: k, NumWorkers: numWorkers}, launcher)
	if err != nil {
		return 0, err
	}
	report, err := c.Run(ctx, testing.Len())
	if err != nil {
		return 0, err
	}
	return report.Total, nil
}
