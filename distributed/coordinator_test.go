package distributed

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Rocketeer8/Number-Classifier/knn"
)

func TestRunAllScenario(t *testing.T) {
	training, testSet := cyclingSets()

	total, err := RunAll(context.Background(), training, testSet, 1, 3)
	require.NoError(t, err)
	require.Equal(t, 4, total)
}

func TestRunAllMatchesSequential(t *testing.T) {
	training, testSet := randomSets(5, 120, 37)

	for _, k := range []int{1, 3, 7} {
		c, err := knn.NewClassifier(training, k)
		require.NoError(t, err)
		want, err := knn.NewRunner(c, testSet).RunAll(context.Background())
		require.NoError(t, err)

		for _, workers := range []int{1, 2, 5, 8, 37, 50} {
			got, err := RunAll(context.Background(), training, testSet, k, workers)
			require.NoError(t, err)
			require.Equal(t, want, got, "k=%d workers=%d", k, workers)
		}
	}
}

func TestCoordinatorExtraWorkers(t *testing.T) {
	training, testSet := cyclingSets()
	launcher := &InProcessLauncher{Training: training, Testing: testSet, K: 1}
	c, err := NewCoordinator(Config{K: 1, NumWorkers: 10}, launcher)
	require.NoError(t, err)

	report, err := c.Run(context.Background(), testSet.Len())
	require.NoError(t, err)
	require.Equal(t, 4, report.Total)
	require.Len(t, report.Workers, 10)
	for _, w := range report.Workers[4:] {
		require.Zero(t, w.Assignment.Count)
		require.Zero(t, w.Correct)
	}
	require.Equal(t, 10, report.Timing.Workers)
	require.Equal(t, 4, report.Timing.Items)
	require.NotEmpty(t, report.RunID)
	require.Positive(t, report.Elapsed)
	require.InDelta(t, 4/report.Elapsed.Seconds(), report.ItemsPerSec(), 1e-6)
}

func TestReportItemsPerSec(t *testing.T) {
	r := &Report{Elapsed: 2 * time.Second}
	r.Timing.Items = 10
	require.Equal(t, 5.0, r.ItemsPerSec())

	require.Zero(t, (&Report{}).ItemsPerSec())
}

func TestCoordinatorRejectsInvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero k", cfg: Config{K: 0, NumWorkers: 2}},
		{name: "negative k", cfg: Config{K: -1, NumWorkers: 2}},
		{name: "zero workers", cfg: Config{K: 1, NumWorkers: 0}},
		{name: "negative workers", cfg: Config{K: 1, NumWorkers: -4}},
		{name: "negative timeout", cfg: Config{K: 1, NumWorkers: 1, Timeout: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := &funcLauncher{serve: func(int) ServeFunc { return nil }}
			_, err := NewCoordinator(tt.cfg, launcher)
			require.ErrorIs(t, err, ErrInvalidArgument)
			require.Zero(t, launcher.Launched())
		})
	}

	training, testSet := cyclingSets()
	_, err := RunAll(context.Background(), training, testSet, 0, 3)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = RunAll(context.Background(), training, testSet, 1, 0)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCoordinatorWorkerCrash(t *testing.T) {
	training, testSet := cyclingSets()
	tests := []struct {
		name    string
		failing ServeFunc
		wantErr error
	}{
		{
			name: "panic",
			failing: func(ctx context.Context, in io.Reader, out io.Writer) error {
				panic("simulated crash")
			},
			wantErr: ErrWorkerFailed,
		},
		{
			name: "error after reading assignment",
			failing: func(ctx context.Context, in io.Reader, out io.Writer) error {
				if _, err := ReadAssignment(in); err != nil {
					return err
				}
				return errors.New("out of memory")
			},
			wantErr: ErrWorkerFailed,
		},
		{
			name: "short result",
			failing: func(ctx context.Context, in io.Reader, out io.Writer) error {
				if _, err := ReadAssignment(in); err != nil {
					return err
				}
				_, err := out.Write([]byte{1, 0})
				return err
			},
			wantErr: ErrProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := &funcLauncher{serve: func(n int) ServeFunc {
				if n == 1 {
					return tt.failing
				}
				return workerServe(training, testSet, 1)
			}}
			c, err := NewCoordinator(Config{K: 1, NumWorkers: 3}, launcher)
			require.NoError(t, err)

			report, err := c.Run(context.Background(), testSet.Len())
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, report)

			failed := 0
			for _, task := range c.tracker.Tasks() {
				if task.State == TaskFailed {
					failed++
					require.Equal(t, 1, task.ID)
				}
			}
			require.Equal(t, 1, failed)
		})
	}
}

func TestCoordinatorTimeout(t *testing.T) {
	training, testSet := cyclingSets()
	launcher := &funcLauncher{serve: func(n int) ServeFunc {
		if n == 0 {
			return func(ctx context.Context, in io.Reader, out io.Writer) error {
				ReadAssignment(in)
				<-ctx.Done()
				return ctx.Err()
			}
		}
		return workerServe(training, testSet, 1)
	}}
	c, err := NewCoordinator(Config{K: 1, NumWorkers: 2, Timeout: 50 * time.Millisecond}, launcher)
	require.NoError(t, err)
	c.pollInterval = 5 * time.Millisecond

	_, err = c.Run(context.Background(), testSet.Len())
	require.ErrorIs(t, err, ErrWorkerTimeout)
}

func TestCoordinatorCancelled(t *testing.T) {
	_, testSet := cyclingSets()
	launcher := &funcLauncher{serve: func(n int) ServeFunc {
		return func(ctx context.Context, in io.Reader, out io.Writer) error {
			ReadAssignment(in)
			<-ctx.Done()
			return ctx.Err()
		}
	}}
	c, err := NewCoordinator(Config{K: 1, NumWorkers: 2}, launcher)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Run(ctx, testSet.Len())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinatorResultsMatchedByWorker(t *testing.T) {
	training, testSet := cyclingSets()
	testSet.Labels[3] = 0 // item 3 is misclassified

	// workers finish in reverse launch order
	var mu sync.Mutex
	var finished []int
	launcher := &funcLauncher{serve: func(n int) ServeFunc {
		return func(ctx context.Context, in io.Reader, out io.Writer) error {
			time.Sleep(time.Duration(4-n) * 15 * time.Millisecond)
			mu.Lock()
			finished = append(finished, n)
			mu.Unlock()
			return workerServe(training, testSet, 1)(ctx, in, out)
		}
	}}
	c, err := NewCoordinator(Config{K: 1, NumWorkers: 4}, launcher)
	require.NoError(t, err)

	report, err := c.Run(context.Background(), testSet.Len())
	require.NoError(t, err)
	require.Equal(t, 3, report.Total)
	require.Equal(t, []int{3, 2, 1, 0}, finished)

	for i, w := range report.Workers {
		require.Equal(t, Assignment{Start: i, Count: 1}, w.Assignment)
		want := 1
		if i == 3 {
			want = 0
		}
		require.Equal(t, want, w.Correct, "worker %d", i)
	}
}

func helperCommand(modes ...string) func(ctx context.Context, workerID string) *exec.Cmd {
	var mu sync.Mutex
	launched := 0
	return func(ctx context.Context, workerID string) *exec.Cmd {
		mu.Lock()
		mode := modes[launched%len(modes)]
		launched++
		mu.Unlock()

		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^$")
		cmd.Env = append(os.Environ(), helperModeEnv+"="+mode, helperIDEnv+"="+workerID)
		return cmd
	}
}

func TestProcessLauncher(t *testing.T) {
	_, testSet := cyclingSets()
	tests := []struct {
		name    string
		modes   []string
		wantErr error
	}{
		{name: "all workers succeed", modes: []string{"serve"}},
		{name: "one worker crashes", modes: []string{"serve", "crash", "serve"}, wantErr: ErrWorkerFailed},
		{name: "one worker sends nothing", modes: []string{"serve", "serve", "silent"}, wantErr: ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := &ProcessLauncher{Command: helperCommand(tt.modes...)}
			c, err := NewCoordinator(Config{K: 1, NumWorkers: 3, Timeout: 30 * time.Second}, launcher)
			require.NoError(t, err)

			report, err := c.Run(context.Background(), testSet.Len())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, 4, report.Total)
		})
	}
}
