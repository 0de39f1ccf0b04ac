package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benaskins/devmode/internal/build"
	"github.com/benaskins/devmode/internal/history"
	"github.com/benaskins/devmode/internal/reload"
)

// TaskState is the lifecycle of a scheduled build. Transitions only go
// forward: Queued to Building to one of the terminal states, or straight
// to Cancelled.
type TaskState int32

const (
	TaskQueued TaskState = iota
	TaskBuilding
	TaskSucceeded
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskBuilding:
		return "building"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s TaskState) Terminal() bool { return s >= TaskSucceeded }

// Task is one scheduled build invocation.
type Task struct {
	ID      uint64
	Goals   []string
	Changes int
	Queued  time.Time

	state    atomic.Int32
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Done is closed once the task is finished with, including the reload that
// follows a successful build.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) transition(from, to TaskState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

// abort moves a live task to Cancelled and cancels its context. It reports
// false if the task had already reached a terminal state.
func (t *Task) abort() bool {
	for {
		s := t.State()
		if s.Terminal() {
			return false
		}
		if t.transition(s, TaskCancelled) {
			t.cancel()
			return true
		}
	}
}

func (t *Task) finish() {
	t.doneOnce.Do(func() {
		t.cancel()
		close(t.done)
	})
}

// Report summarises a finished build.
type Report struct {
	Build      uint64        `json:"build"`
	Outcome    string        `json:"outcome"`
	Goals      []string      `json:"goals"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
	Error      string        `json:"error,omitempty"`
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	State          string   `json:"state"`
	Current        uint64   `json:"current,omitempty"`
	CurrentGoals   []string `json:"current_goals,omitempty"`
	CleanRequired  bool     `json:"clean_required"`
	PendingChanges []string `json:"pending_changes"`
	Builds         uint64   `json:"builds"`
	Last           *Report  `json:"last,omitempty"`
}

// SchedulerConfig wires a Scheduler to its collaborators. Reloader and
// History may be nil.
type SchedulerConfig struct {
	Root          string
	BaseGoals     []string
	Vocabulary    Vocabulary
	Invoker       build.Invoker
	Reloader      reload.Reloader
	History       history.Recorder
	ReloadTimeout time.Duration
	Logger        *slog.Logger
}

// Scheduler owns the pending state and the single build lane. Every new
// batch cancels whatever build is queued or running and replaces it with a
// freshly planned one. Builds run one at a time on the lane, so the
// process of a cancelled build is always reaped before the next starts.
type Scheduler struct {
	cfg    SchedulerConfig
	logger *slog.Logger

	mu      sync.Mutex
	pending *pending
	current *Task
	next    *Task
	seq     uint64
	last    *Report
	closed  bool

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wake       chan struct{}
	quit       chan struct{}
	done       chan struct{}
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Reloader == nil {
		cfg.Reloader = reload.None
	}
	if cfg.History == nil {
		cfg.History = (*history.Log)(nil)
	}
	if cfg.ReloadTimeout <= 0 {
		cfg.ReloadTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.With("component", "scheduler")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:        cfg,
		logger:     logger,
		pending:    newPending(),
		baseCtx:    ctx,
		cancelBase: cancel,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.lane()
	return s
}

// Submit folds a batch into the pending state and schedules a build for
// it, superseding the current one. It never blocks on a running build and
// returns nil once the scheduler is closed.
func (s *Scheduler) Submit(b Batch) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.pending.fold(b)
	goals := Plan(s.cfg.Vocabulary, s.cfg.BaseGoals, PlanInput{
		Structural:       b.Structural,
		ResourcesTouched: b.ResourcesTouched,
		TestsTouched:     b.TestsTouched,
		CleanRequired:    s.pending.cleanRequired,
		ChangeCount:      s.pending.count(),
	})
	return s.replaceLocked(goals, len(b.Events))
}

// Rebuild forces a clean build of everything regardless of what changed.
func (s *Scheduler) Rebuild() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.pending.cleanRequired = true
	goals := Plan(s.cfg.Vocabulary, s.cfg.BaseGoals, PlanInput{
		CleanRequired: true,
		ChangeCount:   s.pending.count(),
	})
	return s.replaceLocked(goals, 0)
}

func (s *Scheduler) replaceLocked(goals []string, changes int) *Task {
	if prev := s.current; prev != nil && prev.abort() {
		s.logger.Info("cancelling superseded build", "build", prev.ID)
		s.record(history.Entry{Build: prev.ID, Outcome: history.OutcomeCancelled})
	}
	s.seq++
	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &Task{
		ID:      s.seq,
		Goals:   goals,
		Changes: changes,
		Queued:  time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	t.state.Store(int32(TaskQueued))

	// A task superseded before the lane picked it up is never started.
	if s.next != nil {
		s.next.finish()
	}
	s.current = t
	s.next = t
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return t
}

func (s *Scheduler) lane() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		t := s.next
		s.next = nil
		s.mu.Unlock()

		if t == nil {
			continue
		}
		if !t.transition(TaskQueued, TaskBuilding) {
			t.finish()
			continue
		}
		s.execute(t)
		t.finish()
	}
}

func (s *Scheduler) execute(t *Task) {
	s.logger.Info("starting build", "build", t.ID, "goals", t.Goals)
	s.record(history.Entry{Build: t.ID, Outcome: history.OutcomeStarted, Goals: t.Goals, Changes: t.Changes})

	res, err := s.cfg.Invoker.Run(t.ctx, build.Request{Root: s.cfg.Root, Goals: t.Goals})

	if !s.complete(t, res, err) {
		s.logger.Debug("discarding result of superseded build", "build", t.ID)
		return
	}
	if t.State() != TaskSucceeded {
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.ReloadTimeout)
	defer cancel()
	if err := s.cfg.Reloader.Reload(ctx); err != nil {
		s.logger.Error("reload failed", "build", t.ID, "error", err)
		s.record(history.Entry{Build: t.ID, Outcome: history.OutcomeReloadFailed, Error: err.Error()})
		return
	}
	s.logger.Info("application reloaded", "build", t.ID)
}

// complete applies a build's result. Only the current task may touch the
// pending state; a task that was cancelled or replaced while running is
// ignored no matter what its process returned.
func (s *Scheduler) complete(t *Task, res build.Result, runErr error) bool {
	s.mu.Lock()
	if s.current != t {
		s.mu.Unlock()
		return false
	}

	report := &Report{
		Build:      t.ID,
		Goals:      t.Goals,
		ExitCode:   res.ExitCode,
		Duration:   res.Duration,
		FinishedAt: time.Now(),
	}
	entry := history.Entry{
		Build:      t.ID,
		Goals:      t.Goals,
		ExitCode:   history.Code(res.ExitCode),
		DurationMS: res.Duration.Milliseconds(),
	}

	if runErr == nil && res.ExitCode == 0 {
		if !t.transition(TaskBuilding, TaskSucceeded) {
			s.mu.Unlock()
			return false
		}
		s.pending.reset()
		report.Outcome = TaskSucceeded.String()
		entry.Outcome = history.OutcomeSucceeded
	} else {
		if !t.transition(TaskBuilding, TaskFailed) {
			s.mu.Unlock()
			return false
		}
		report.Outcome = TaskFailed.String()
		entry.Outcome = history.OutcomeFailed
		if runErr != nil {
			report.Error = runErr.Error()
			entry.Error = runErr.Error()
		}
	}
	s.last = report
	s.mu.Unlock()

	if entry.Outcome == history.OutcomeSucceeded {
		s.logger.Info("build succeeded", "build", t.ID, "duration", res.Duration)
	} else {
		s.logger.Error("build failed", "build", t.ID, "exit_code", res.ExitCode, "error", runErr)
	}
	s.record(entry)
	return true
}

func (s *Scheduler) record(e history.Entry) {
	if err := s.cfg.History.Record(e); err != nil {
		s.logger.Warn("failed to record build history", "error", err)
	}
}

// Close cancels any queued or running build, waits for the lane to drain
// and releases its resources. It is safe to call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	if s.current != nil && s.current.abort() {
		s.logger.Info("cancelling build on shutdown", "build", s.current.ID)
		s.record(history.Entry{Build: s.current.ID, Outcome: history.OutcomeCancelled})
	}
	s.mu.Unlock()

	s.cancelBase()
	close(s.quit)
	<-s.done

	s.mu.Lock()
	if s.next != nil {
		s.next.finish()
		s.next = nil
	}
	s.mu.Unlock()
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStatus{
		State:          "idle",
		CleanRequired:  s.pending.cleanRequired,
		PendingChanges: s.pending.keys(),
		Builds:         s.seq,
	}
	if t := s.current; t != nil {
		if ts := t.State(); !ts.Terminal() {
			st.State = ts.String()
			st.Current = t.ID
			st.CurrentGoals = t.Goals
		}
	}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	return st
}
