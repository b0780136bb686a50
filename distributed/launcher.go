package distributed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/Rocketeer8/Number-Classifier/knn"
)

var errUnitStopped = errors.New("unit stopped")

// Unit is one running worker. In carries the assignment to the worker, Out
// carries its result back. Wait reports how the unit terminated: nil means a
// normal exit.
type Unit struct {
	ID  string
	In  io.WriteCloser
	Out io.ReadCloser

	wait func() error
	stop func()

	waitOnce sync.Once
	waitErr  error
}

func (u *Unit) Wait() error {
	u.waitOnce.Do(func() {
		u.waitErr = u.wait()
	})
	return u.waitErr
}

// Stop forces the unit to terminate. It is safe to call after the unit exited.
func (u *Unit) Stop() {
	if u.stop != nil {
		u.stop()
	}
}

type Launcher interface {
	Launch(ctx context.Context, workerID string) (*Unit, error)
}

type ServeFunc func(ctx context.Context, in io.Reader, out io.Writer) error

// NewPipeUnit runs serve in its own goroutine connected through two pipes.
// A panic in serve is reported by Wait as an abnormal termination.
func NewPipeUnit(ctx context.Context, workerID string, serve ServeFunc) *Unit {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	stopped := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			inR.CloseWithError(io.ErrClosedPipe)
			outW.CloseWithError(err)
			done <- err
		}()
		err = serve(ctx, inR, outW)
	}()

	return &Unit{
		ID:  workerID,
		In:  inW,
		Out: outR,
		wait: func() error {
			select {
			case err := <-done:
				return err
			case <-stopped:
				return errUnitStopped
			}
		},
		stop: func() {
			stopOnce.Do(func() {
				close(stopped)
				inR.CloseWithError(errUnitStopped)
				outR.CloseWithError(errUnitStopped)
			})
		},
	}
}

type InProcessLauncher struct {
	Training *knn.Dataset
	Testing  *knn.Dataset
	K        int
	Verbose  bool
}

func (l *InProcessLauncher) Launch(ctx context.Context, workerID string) (*Unit, error) {
	worker, err := NewWorker(workerID, l.Training, l.Testing, l.K)
	if err != nil {
		return nil, err
	}
	worker.SetVerbose(l.Verbose)
	return NewPipeUnit(ctx, workerID, worker.Serve), nil
}

// ProcessLauncher runs every worker as a child process speaking the protocol
// on its stdin and stdout.
type ProcessLauncher struct {
	Command func(ctx context.Context, workerID string) *exec.Cmd
}

func (l *ProcessLauncher) Launch(ctx context.Context, workerID string) (*Unit, error) {
	if l.Command == nil {
		return nil, fmt.Errorf("%w: process launcher has no command", ErrInvalidArgument)
	}
	cmd := l.Command(ctx, workerID)
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe for worker %s: %w", workerID, err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("stdout pipe for worker %s: %w", workerID, err)
	}
	if err := cmd.Start(); err != nil {
		in.Close()
		out.Close()
		return nil, fmt.Errorf("start worker %s: %w", workerID, err)
	}

	return &Unit{
		ID:  workerID,
		In:  in,
		Out: out,
		wait: func() error {
			if err := cmd.Wait(); err != nil {
				return fmt.Errorf("pid %d: %w", cmd.Process.Pid, err)
			}
			return nil
		},
		stop: func() {
			cmd.Process.Kill()
		},
	}, nil
}
