// Package scheduler implements the tick scheduler: a single-threaded
// cooperative loop that drives every periodic task in the engine (sync,
// DB flush, cache cleaning) off one fixed-period ticker, rather than the
// pull-based worker pool the rest of this module's ancestry uses for
// background jobs.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"tileworld.dev/server/common"
)

// TaskFunc is invoked once per due tick with the elapsed time since its
// previous run.
type TaskFunc func(ctx context.Context, delta time.Duration) error

// task is {fn, periodMs, lastRun, priority}. lastRun is set to +∞
// (runningSentinel, a time value far in the future) while the task is
// executing, which both marks it non-reentrant and keeps it from being
// picked up again mid-run.
type task struct {
	name     string
	fn       TaskFunc
	period   time.Duration
	priority int
	lastRun  time.Time
}

var runningSentinel = time.Unix(1<<62, 0)

// Scheduler runs every registered task cooperatively on one goroutine, at
// a fixed tick period. It is not safe to call Run concurrently with
// itself, but Add/Remove may be called from any goroutine at any time,
// including from inside a running task.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	period time.Duration
	log    *common.ContextLogger

	stop chan struct{}
	done chan struct{}
}

func New(period time.Duration, log *common.ContextLogger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*task),
		period: period,
		log:    log,
	}
}

// Add registers fn to run every period, in priority order among ties
// within a tick (lower priority value runs first). Registering a name
// that already exists replaces it.
func (s *Scheduler) Add(name string, period time.Duration, priority int, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = &task{name: name, fn: fn, period: period, priority: priority}
}

// Remove unregisters a task; safe to call while the scheduler is running,
// including from within the task being removed.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

// Run drives the tick loop until ctx is canceled or Stop is called.
// Stopping drains no queue: an in-flight tick finishes, no further tick
// begins.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()
	defer close(s.done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			default:
			}
			s.tick(ctx, now)
		}
	}
}

// Stop requests the loop to exit after the in-flight tick (if any)
// finishes, and blocks until it has.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// tick runs every due task in turn, in priority order, on this goroutine.
// The engine's collaborators (change tracker, synchronizer, persistence
// gateway) publish state only at task boundaries and share none of it
// across threads, so the scheduler itself must not introduce concurrency
// between tasks — a slow flush delays the next sync pass rather than
// racing it.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	due := s.dueTasksLocked(now)
	for _, d := range due {
		s.runTask(ctx, d.t, d.delta, now)
	}
}

type dueTask struct {
	t     *task
	delta time.Duration
}

// dueTasksLocked snapshots and locks (sets lastRun=runningSentinel) every
// task whose period has elapsed, in priority order, so concurrent Add/
// Remove calls during execution never race the tasks map. delta is
// captured here, before lastRun is overwritten with the sentinel.
func (s *Scheduler) dueTasksLocked(now time.Time) []dueTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]dueTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.lastRun == runningSentinel {
			continue // still executing from a previous tick; skip this one
		}
		if now.Sub(t.lastRun) >= t.period {
			due = append(due, dueTask{t: t, delta: now.Sub(t.lastRun)})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].t.priority < due[j].t.priority })
	for _, d := range due {
		d.t.lastRun = runningSentinel
	}
	return due
}

func (s *Scheduler) runTask(ctx context.Context, t *task, delta time.Duration, now time.Time) {
	defer func() {
		s.mu.Lock()
		t.lastRun = now
		s.mu.Unlock()
	}()
	if err := t.fn(ctx, delta); err != nil && s.log != nil {
		s.log.WithError(err).WithField("task", t.name).Error("scheduled task failed")
	}
}
