// Package session runs the dev-mode loop: it collects filesystem
// notifications into debounced batches, plans build goals for them and
// hands them to a scheduler that keeps at most one build alive.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benaskins/devmode/internal/build"
	"github.com/benaskins/devmode/internal/change"
	"github.com/benaskins/devmode/internal/history"
	"github.com/benaskins/devmode/internal/reload"
	"github.com/benaskins/devmode/internal/watch"
)

const (
	DefaultPollTimeout  = 60 * time.Second
	DefaultDebounce     = 300 * time.Millisecond
	DefaultMaxBatchWait = 5 * time.Second
)

var errStopped = errors.New("session stopped")

// Config wires a Session. Source and Invoker are required.
type Config struct {
	Layout           Layout
	BaseGoals        []string
	Vocabulary       Vocabulary
	Ignore           []string
	CompiledPatterns []string
	SkipUnchanged    bool

	// PollTimeout bounds each idle wait so the loop stays responsive to
	// stop requests even if the source never produces anything.
	PollTimeout  time.Duration
	Debounce     time.Duration
	MaxBatchWait time.Duration

	Source        watch.Source
	Invoker       build.Invoker
	Reloader      reload.Reloader
	ReloadTimeout time.Duration
	History       history.Recorder
	Logger        *slog.Logger
}

// Status is what the control API reports.
type Status struct {
	Running     bool            `json:"running"`
	Root        string          `json:"root"`
	SourceDir   string          `json:"source_dir"`
	StartedAt   time.Time       `json:"started_at,omitzero"`
	WatchedDirs int             `json:"watched_dirs"`
	Batches     uint64          `json:"batches"`
	Scheduler   SchedulerStatus `json:"scheduler"`
}

// Session is the lifecycle controller. It is started once and stopped
// once; Stop may be called from any goroutine.
type Session struct {
	cfg        Config
	logger     *slog.Logger
	registrar  *watch.Registrar
	aggregator *Aggregator
	scheduler  *Scheduler

	started   atomic.Bool
	running   atomic.Bool
	startedAt atomic.Int64
	batches   atomic.Uint64

	stopCh    chan struct{}
	stopOnce  sync.Once
	rebuildCh chan struct{}
	done      chan struct{}
}

func New(cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, errors.New("session: no notification source")
	}
	if cfg.Invoker == nil {
		return nil, errors.New("session: no build invoker")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxBatchWait < cfg.Debounce {
		cfg.MaxBatchWait = max(DefaultMaxBatchWait, cfg.Debounce)
	}
	if cfg.Vocabulary == (Vocabulary{}) {
		cfg.Vocabulary = MavenVocabulary
	}
	base := cfg.Logger
	if base == nil {
		base = slog.Default()
	}
	logger := base.With("component", "session")

	ignore, err := watch.NewMatcher(cfg.Layout.Root, cfg.Ignore)
	if err != nil {
		return nil, err
	}
	classifier, err := change.NewClassifier(cfg.CompiledPatterns)
	if err != nil {
		return nil, err
	}
	registrar := watch.NewRegistrar(cfg.Source, ignore, base.With("component", "registrar"))

	var fingerprints *watch.Fingerprints
	if cfg.SkipUnchanged {
		fingerprints = watch.NewFingerprints()
	}
	aggregator, err := NewAggregator(AggregatorConfig{
		Layout:       cfg.Layout,
		Classifier:   classifier,
		Registrar:    registrar,
		Ignore:       ignore,
		Fingerprints: fingerprints,
		Logger:       base.With("component", "aggregator"),
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:        cfg,
		logger:     logger,
		registrar:  registrar,
		aggregator: aggregator,
		scheduler: NewScheduler(SchedulerConfig{
			Root:          cfg.Layout.Root,
			BaseGoals:     cfg.BaseGoals,
			Vocabulary:    cfg.Vocabulary,
			Invoker:       cfg.Invoker,
			Reloader:      cfg.Reloader,
			History:       cfg.History,
			ReloadTimeout: cfg.ReloadTimeout,
			Logger:        base.With("component", "scheduler"),
		}),
		stopCh:    make(chan struct{}),
		rebuildCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start registers the source tree and runs the loop until Stop is called,
// ctx is cancelled or the notification source fails. A clean stop returns
// nil. Whatever the outcome, the in-flight build is cancelled and the
// source is closed before Start returns.
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}
	defer close(s.done)
	defer s.shutdown()

	if err := s.registrar.RegisterTree(s.cfg.Layout.SourceDir); err != nil {
		s.logger.Error("cannot watch source tree", "dir", s.cfg.Layout.SourceDir, "error", err)
		return err
	}

	s.running.Store(true)
	s.startedAt.Store(time.Now().UnixNano())
	s.logger.Info("dev mode started", "root", s.cfg.Layout.Root, "goals", s.cfg.BaseGoals)

	for {
		raw, err := s.collect(ctx)
		if errors.Is(err, errStopped) {
			s.logger.Info("dev mode stopping")
			return nil
		}
		if err != nil {
			s.logger.Error("notification source failed", "error", err)
			return err
		}
		if len(raw) > 0 {
			s.process(raw)
		}
	}
}

// collect waits up to PollTimeout for a first notification, then keeps
// reading until the source has been quiet for Debounce or MaxBatchWait has
// passed since the first one. An empty result means the wait timed out.
func (s *Session) collect(ctx context.Context) ([]watch.Notification, error) {
	timer := time.NewTimer(s.cfg.PollTimeout)
	defer timer.Stop()

	var raw []watch.Notification
	var capC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil, errStopped
		case <-s.stopCh:
			return nil, errStopped
		case <-s.rebuildCh:
			s.logger.Info("rebuild requested")
			s.scheduler.Rebuild()
		case n, ok := <-s.cfg.Source.Notifications():
			if !ok {
				return nil, watch.ErrSourceClosed
			}
			if raw == nil {
				capTimer := time.NewTimer(s.cfg.MaxBatchWait)
				defer capTimer.Stop()
				capC = capTimer.C
			}
			raw = append(raw, n)
			timer.Reset(s.cfg.Debounce)
		case err, ok := <-s.cfg.Source.Errors():
			if !ok {
				return nil, watch.ErrSourceClosed
			}
			return nil, fmt.Errorf("watching %s: %w", s.cfg.Layout.SourceDir, err)
		case <-timer.C:
			return raw, nil
		case <-capC:
			return raw, nil
		}
	}
}

func (s *Session) process(raw []watch.Notification) {
	batch, err := s.aggregator.Aggregate(raw)
	if err != nil {
		s.logger.Error("discarding change batch", "notifications", len(raw), "error", err)
		return
	}
	if batch.Empty() {
		return
	}
	s.batches.Add(1)
	s.scheduler.Submit(batch)
}

func (s *Session) shutdown() {
	s.running.Store(false)
	s.scheduler.Close()
	if err := s.cfg.Source.Close(); err != nil {
		s.logger.Warn("closing notification source", "error", err)
	}
	s.logger.Info("dev mode stopped")
}

// Stop asks the loop to exit. It returns immediately and is idempotent.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done is closed when Start has returned and all resources are released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Rebuild requests a clean build of the whole project. Requests made while
// one is already waiting are coalesced.
func (s *Session) Rebuild() {
	select {
	case s.rebuildCh <- struct{}{}:
	default:
	}
}

func (s *Session) Status() Status {
	st := Status{
		Running:     s.running.Load(),
		Root:        s.cfg.Layout.Root,
		SourceDir:   s.cfg.Layout.SourceDir,
		WatchedDirs: s.registrar.Len(),
		Batches:     s.batches.Load(),
		Scheduler:   s.scheduler.Status(),
	}
	if ns := s.startedAt.Load(); ns != 0 {
		st.StartedAt = time.Unix(0, ns)
	}
	return st
}
