package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/martinsuchenak/gwconsole/internal/log"
)

// Task status values.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Task represents a scheduled job
type Task struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	NextRun   time.Time  `json:"next_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Status    string     `json:"status"`

	entry   cron.EntryID
	handler TaskHandler
}

// TaskHandler is the function executed by a task
type TaskHandler func(ctx context.Context) error

// Scheduler runs tasks on cron schedules. A task never overlaps with itself.
type Scheduler struct {
	mu      sync.RWMutex
	cron    *cron.Cron
	tasks   map[string]*Task
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler() *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron:  cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		tasks: make(map[string]*Task),
	}
}

// Add registers handler under id with a standard five-field cron spec or a
// descriptor such as "@every 5m".
func (s *Scheduler) Add(id, name, spec string, handler TaskHandler) error {
	if spec == "" {
		return errors.New("schedule required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; exists {
		return fmt.Errorf("task %q already registered", id)
	}

	task := &Task{
		ID:       id,
		Name:     name,
		Schedule: spec,
		Status:   StatusPending,
		handler:  handler,
	}
	entry, err := s.cron.AddFunc(spec, func() { s.run(task) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	task.entry = entry
	s.tasks[id] = task

	log.Info("Task registered", "task_id", id, "schedule", spec)
	return nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron.Start()
	log.Info("Starting background scheduler", "tasks", len(s.tasks))
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	log.Info("Stopping background scheduler")
	cancel()
	<-s.cron.Stop().Done()
}

// RunNow executes a task immediately, outside its schedule.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	task, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	s.run(task)
	return nil
}

// Tasks returns a copy of every registered task sorted by id.
func (s *Scheduler) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		cp := *t
		if e := s.cron.Entry(t.entry); e.Valid() {
			cp.NextRun = e.Next
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) run(task *Task) {
	s.mu.Lock()
	if task.Status == StatusRunning {
		s.mu.Unlock()
		return
	}
	task.Status = StatusRunning
	now := time.Now()
	task.LastRun = &now
	ctx := s.ctx
	s.mu.Unlock()

	// RunNow before Start has no scheduler context.
	if ctx == nil {
		ctx = context.Background()
	}

	log.Debug("Running task", "task_id", task.ID)
	err := task.handler(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		task.Status = StatusFailed
		task.LastError = err.Error()
		log.Error("Task failed", "task_id", task.ID, "error", err)
		return
	}
	task.Status = StatusCompleted
	task.LastError = ""
	log.Debug("Task completed", "task_id", task.ID, "duration", time.Since(now))
}

// cronLogger routes cron's own messages through the console logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
