package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/Rocketeer8/Number-Classifier/config"
	"github.com/Rocketeer8/Number-Classifier/distributed"
	"github.com/Rocketeer8/Number-Classifier/knn"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, config.Usage)
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Printf("Invalid arguments: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Worker {
		if err := runWorker(ctx, cfg); err != nil {
			log.Printf("Worker error: %v", err)
			stop()
			os.Exit(1)
		}
		return
	}

	total, err := runCoordinator(ctx, cfg)
	if err != nil {
		log.Printf("Error: %v", err)
		stop()
		os.Exit(1)
	}
	fmt.Println(total)
}

func loadDatasets(cfg *config.Config) (*knn.Dataset, *knn.Dataset, error) {
	training, err := knn.Load(cfg.TrainingPath)
	if err != nil {
		return nil, nil, fmt.Errorf("training data: %w", err)
	}
	testing, err := knn.Load(cfg.TestingPath)
	if err != nil {
		return nil, nil, fmt.Errorf("testing data: %w", err)
	}
	return training, testing, nil
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	training, testing, err := loadDatasets(cfg)
	if err != nil {
		return err
	}
	worker, err := distributed.NewWorker(cfg.WorkerID, training, testing, cfg.K)
	if err != nil {
		return err
	}
	worker.SetVerbose(cfg.Verbose)
	return worker.Serve(ctx, os.Stdin, os.Stdout)
}

func runCoordinator(ctx context.Context, cfg *config.Config) (int, error) {
	training, testing, err := loadDatasets(cfg)
	if err != nil {
		return 0, err
	}
	if cfg.Verbose {
		log.Printf("training=%d testing=%d k=%d workers=%d mode=%s",
			training.Len(), testing.Len(), cfg.K, cfg.NumWorkers, cfg.Mode)
	}

	var launcher distributed.Launcher
	switch cfg.Mode {
	case config.ModeInProcess:
		launcher = &distributed.InProcessLauncher{
			Training: training,
			Testing:  testing,
			K:        cfg.K,
			Verbose:  cfg.Verbose,
		}
	default:
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("locate executable: %w", err)
		}
		launcher = &distributed.ProcessLauncher{
			Command: func(ctx context.Context, workerID string) *exec.Cmd {
				return exec.CommandContext(ctx, exe, cfg.WorkerArgs(workerID)...)
			},
		}
	}

	coordinator, err := distributed.NewCoordinator(distributed.Config{
		K:          cfg.K,
		NumWorkers: cfg.NumWorkers,
		Timeout:    cfg.Timeout,
		Verbose:    cfg.Verbose,
	}, launcher)
	if err != nil {
		return 0, err
	}

	report, err := coordinator.Run(ctx, testing.Len())
	if err != nil {
		return 0, err
	}
	return report.Total, nil
}
