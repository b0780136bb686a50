package distributed

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

const defaultTimeout = 10 * time.Minute

type TaskState int

const (
	TaskIdle TaskState = iota
	TaskInProgress
	TaskCompleted
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskIdle:
		return "idle"
	case TaskInProgress:
		return "in-progress"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	}
	return fmt.Sprintf("TaskState(%d)", int(s))
}

type TaskMetadata struct {
	StartTime time.Time
	EndTime   time.Time
	WorkerID  string
	LastError string
}

type Task struct {
	Metadata   TaskMetadata
	Assignment Assignment
	ID         int
	State      TaskState
	Correct    int
}

func (t Task) Duration() time.Duration {
	if t.Metadata.EndTime.IsZero() {
		return time.Since(t.Metadata.StartTime)
	}
	return t.Metadata.EndTime.Sub(t.Metadata.StartTime)
}

// TaskTracker records which worker owns which assignment and how far it got.
// Results are looked up by worker identity, never by arrival order.
type TaskTracker struct {
	tasks    map[int]*Task
	byWorker map[string]int
	mu       sync.RWMutex
	timeout  time.Duration
}

func NewTaskTracker(timeout time.Duration) *TaskTracker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &TaskTracker{
		tasks:    make(map[int]*Task),
		byWorker: make(map[string]int),
		timeout:  timeout,
	}
}

func (t *TaskTracker) InitTasks(assignments []Assignment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tasks = make(map[int]*Task, len(assignments))
	t.byWorker = make(map[string]int, len(assignments))
	for i, a := range assignments {
		t.tasks[i] = &Task{
			ID:         i,
			Assignment: a,
			State:      TaskIdle,
		}
	}
}

func (t *TaskTracker) AssignTask(taskID int, workerID string) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, exists := t.tasks[taskID]
	if !exists {
		return Task{}, fmt.Errorf("task %d not found", taskID)
	}
	if task.State != TaskIdle {
		return Task{}, fmt.Errorf("task %d is %s, not idle", taskID, task.State)
	}
	if _, taken := t.byWorker[workerID]; taken {
		return Task{}, fmt.Errorf("worker %s already owns a task", workerID)
	}

	task.State = TaskInProgress
	task.Metadata.StartTime = time.Now()
	task.Metadata.WorkerID = workerID
	t.byWorker[workerID] = taskID
	return *task, nil
}

func (t *TaskTracker) MarkComplete(workerID string, correct int) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, err := t.inProgressLocked(workerID)
	if err != nil {
		return Task{}, err
	}
	task.State = TaskCompleted
	task.Correct = correct
	task.Metadata.EndTime = time.Now()
	return *task, nil
}

func (t *TaskTracker) MarkFailed(workerID string, cause error) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, err := t.inProgressLocked(workerID)
	if err != nil {
		return Task{}, err
	}
	task.State = TaskFailed
	task.Metadata.EndTime = time.Now()
	if cause != nil {
		task.Metadata.LastError = cause.Error()
	}
	log.Printf("Task %d failed on worker %s: %v", task.ID, workerID, cause)
	return *task, nil
}

func (t *TaskTracker) inProgressLocked(workerID string) (*Task, error) {
	taskID, exists := t.byWorker[workerID]
	if !exists {
		return nil, fmt.Errorf("unknown worker %s", workerID)
	}
	task := t.tasks[taskID]
	if task.State != TaskInProgress {
		return nil, fmt.Errorf("task %d of worker %s is %s", taskID, workerID, task.State)
	}
	return task, nil
}

// CheckTimeouts returns the in-progress tasks that have run longer than the
// tracker timeout.
func (t *TaskTracker) CheckTimeouts() []Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	var overdue []Task
	for _, task := range t.tasks {
		if task.State == TaskInProgress && now.Sub(task.Metadata.StartTime) > t.timeout {
			overdue = append(overdue, *task)
		}
	}
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].ID < overdue[j].ID })
	return overdue
}

func (t *TaskTracker) IsDone() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, task := range t.tasks {
		if task.State != TaskCompleted {
			return false
		}
	}
	return true
}

// Tasks returns a copy of every task ordered by ID.
func (t *TaskTracker) Tasks() []Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		out = append(out, *task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
