package scheduler

import (
	"context"
	"sync"
	"time"
)

// Task is one periodic unit of work. Errors are contained: they are logged
// and the task keeps ticking.
type Task func(ctx context.Context) error

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry holds one registered periodic task.
type entry struct {
	name   string
	period time.Duration
	task   Task
}

// Scheduler runs independent periodic tasks, one goroutine and one ticker
// per task.
//
// Guarantees:
//   - Within one task, ticks are strictly sequential; a slow tick delays
//     only that task's next tick.
//   - Across tasks there is no ordering: a delay or failure in one task
//     never delays another task's tick.
//   - A panicking tick is recovered and logged; the task keeps running.
//
// Tasks never share mutable state through the scheduler; they communicate
// only through the broker session's publish/subscribe contract.
type Scheduler struct {
	mu      sync.Mutex
	entries []entry
	running bool

	logger Logger
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for tick diagnostics.
func (s *Scheduler) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Add registers a named periodic task. All tasks must be added before Run;
// Add after Run is ignored with a warning.
func (s *Scheduler) Add(name string, period time.Duration, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("task added after scheduler start, ignored", "task", name)
		return
	}

	s.entries = append(s.entries, entry{name: name, period: period, task: task})
}

// Run starts every registered task and blocks until ctx is cancelled and
// all task goroutines have drained. The first tick of each task fires one
// full period after start.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	entries := s.entries
	logger := s.logger
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.loop(ctx, e, logger)
		}(e)
	}

	wg.Wait()
}

// loop drives one task until cancellation.
func (s *Scheduler) loop(ctx context.Context, e entry, logger Logger) {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	logger.Debug("task started", "task", e.name, "period", e.period)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("task stopped", "task", e.name)
			return
		case <-ticker.C:
			s.runTick(ctx, e, logger)
		}
	}
}

// runTick executes one tick with panic containment.
func (s *Scheduler) runTick(ctx context.Context, e entry, logger Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task tick panic recovered", "task", e.name, "panic", r)
		}
	}()

	if err := e.task(ctx); err != nil {
		// Contained by contract: a failed tick must not crash the process
		// or stall other tasks
		logger.Debug("task tick returned error", "task", e.name, "error", err)
	}
}
