package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Rocketeer8/Number-Classifier/knn"
)

const (
	ModeProcess   = "process"
	ModeInProcess = "inproc"
)

const Usage = "usage: knn-classify [-mode process|inproc] [-timeout d] [-verbose] K TRAINING_DATA TESTING_DATA NUM_WORKERS"

var ErrInvalidArgument = knn.ErrInvalidArgument

type Config struct {
	TrainingPath string
	TestingPath  string
	Mode         string
	WorkerID     string
	K            int
	NumWorkers   int
	Timeout      time.Duration
	Verbose      bool
	// Worker is set on child processes started by the process launcher.
	Worker bool
}

// Parse reads flags followed by the four positional arguments K,
// training path, testing path and worker count, then validates the result.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("knn-classify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Mode, "mode", ModeProcess, "Worker isolation: process or inproc")
	fs.DurationVar(&cfg.Timeout, "timeout", 10*time.Minute, "Maximum time a worker may take before the run fails")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Log per-worker progress")
	fs.BoolVar(&cfg.Worker, "worker", false, "Serve one assignment on stdin/stdout (internal)")
	fs.StringVar(&cfg.WorkerID, "worker-id", "", "Worker identity (internal)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	pos := fs.Args()
	if len(pos) != 4 {
		return nil, fmt.Errorf("%w: expected 4 arguments, got %d", ErrInvalidArgument, len(pos))
	}

	k, err := strconv.Atoi(pos[0])
	if err != nil {
		return nil, fmt.Errorf("%w: k: %v", ErrInvalidArgument, err)
	}
	workers, err := strconv.Atoi(pos[3])
	if err != nil {
		return nil, fmt.Errorf("%w: number of workers: %v", ErrInvalidArgument, err)
	}
	cfg.K = k
	cfg.TrainingPath = pos[1]
	cfg.TestingPath = pos[2]
	cfg.NumWorkers = workers

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidArgument)
	}
	if c.K <= 0 {
		return fmt.Errorf("%w: k must be > 0 (got %d)", ErrInvalidArgument, c.K)
	}
	if c.NumWorkers <= 0 {
		return fmt.Errorf("%w: number of workers must be > 0 (got %d)", ErrInvalidArgument, c.NumWorkers)
	}
	if c.TrainingPath == "" || c.TestingPath == "" {
		return fmt.Errorf("%w: training and testing paths are required", ErrInvalidArgument)
	}
	if c.Mode != ModeProcess && c.Mode != ModeInProcess {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, c.Mode)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be > 0 (got %s)", ErrInvalidArgument, c.Timeout)
	}
	return nil
}

// WorkerArgs returns the command line for a child serving one assignment.
func (c *Config) WorkerArgs(workerID string) []string {
	args := []string{"-worker", "-worker-id", workerID}
	if c.Verbose {
		args = append(args, "-verbose")
	}
	return append(args,
		strconv.Itoa(c.K),
		c.TrainingPath,
		c.TestingPath,
		strconv.Itoa(c.NumWorkers),
	)
}
