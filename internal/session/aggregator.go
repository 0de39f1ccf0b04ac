package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/benaskins/devmode/internal/change"
	"github.com/benaskins/devmode/internal/watch"
)

// Layout locates the trees of a project. All paths are absolute.
type Layout struct {
	Root        string
	SourceDir   string
	ResourceDir string
	TestDir     string
}

// DefaultLayout is the Maven convention under root.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:        root,
		SourceDir:   filepath.Join(root, "src"),
		ResourceDir: filepath.Join(root, "src", "main", "resources"),
		TestDir:     filepath.Join(root, "src", "test"),
	}
}

// Batch is one debounced, classified set of changes. Events are
// deduplicated and sorted.
type Batch struct {
	Events           []change.Event
	Structural       bool
	ResourcesTouched bool
	TestsTouched     bool
}

func (b Batch) Empty() bool { return len(b.Events) == 0 }

// SubtreeRegistrar subscribes newly created directories.
type SubtreeRegistrar interface {
	RegisterSubtree(dir string) error
}

// Aggregator turns raw notifications into a Batch.
type Aggregator struct {
	layout       Layout
	resourceRel  string
	testRel      string
	classifier   *change.Classifier
	registrar    SubtreeRegistrar
	ignore       *watch.Matcher
	fingerprints *watch.Fingerprints
	logger       *slog.Logger
}

// AggregatorConfig configures an Aggregator. Ignore and Fingerprints may be
// nil; a nil Fingerprints reports every modification.
type AggregatorConfig struct {
	Layout       Layout
	Classifier   *change.Classifier
	Registrar    SubtreeRegistrar
	Ignore       *watch.Matcher
	Fingerprints *watch.Fingerprints
	Logger       *slog.Logger
}

func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	resourceRel, err := relUnder(cfg.Layout.Root, cfg.Layout.ResourceDir)
	if err != nil {
		return nil, fmt.Errorf("resource dir: %w", err)
	}
	testRel, err := relUnder(cfg.Layout.Root, cfg.Layout.TestDir)
	if err != nil {
		return nil, fmt.Errorf("test dir: %w", err)
	}
	classifier := cfg.Classifier
	if classifier == nil {
		if classifier, err = change.NewClassifier(nil); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.With("component", "aggregator")
	}
	return &Aggregator{
		layout:       cfg.Layout,
		resourceRel:  resourceRel,
		testRel:      testRel,
		classifier:   classifier,
		registrar:    cfg.Registrar,
		ignore:       cfg.Ignore,
		fingerprints: cfg.Fingerprints,
		logger:       logger,
	}, nil
}

// Aggregate classifies a window of notifications. Created directories under
// the root are subscribed as soon as they are seen so files written into
// them right away are not missed. If any path cannot be expressed relative
// to the project root the whole batch is rejected.
func (a *Aggregator) Aggregate(raw []watch.Notification) (Batch, error) {
	events := make([]change.Event, 0, len(raw))
	var errs []error

	for _, n := range raw {
		if a.ignore.Ignored(n.Path) {
			continue
		}
		rel, err := relUnder(a.layout.Root, n.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n.Kind == change.Created && a.registrar != nil {
			if info, err := os.Lstat(n.Path); err == nil && info.IsDir() {
				// The registrar logs its own failures; the directory is still a change.
				_ = a.registrar.RegisterSubtree(n.Path)
			}
		}
		if !a.contentChanged(n) {
			a.logger.Debug("content unchanged", "path", rel)
			continue
		}

		a.logger.Info("source changed", "path", rel, "kind", n.Kind)
		events = append(events, change.New(rel, n.Kind, a.classifier.IsCompiledUnit(rel)))
	}
	if len(errs) > 0 {
		return Batch{}, errors.Join(errs...)
	}

	b := Batch{Events: change.Dedup(events)}
	for _, e := range b.Events {
		if e.Kind() == change.Deleted {
			b.Structural = true
		}
		if within(e.Path(), a.resourceRel) {
			b.ResourcesTouched = true
		}
		if within(e.Path(), a.testRel) {
			b.TestsTouched = true
		}
	}
	return b, nil
}

func (a *Aggregator) contentChanged(n watch.Notification) bool {
	if a.fingerprints == nil {
		return true
	}
	switch n.Kind {
	case change.Deleted:
		a.fingerprints.Forget(n.Path)
		return true
	case change.Created:
		a.fingerprints.Changed(n.Path)
		return true
	default:
		return a.fingerprints.Changed(n.Path)
	}
}

// relUnder expresses path relative to root, failing if it is outside.
func relUnder(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("%s is not relative to %s: %w", path, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}

func within(rel, dir string) bool {
	if dir == "." || dir == "" {
		return true
	}
	return rel == dir || strings.HasPrefix(rel, dir+"/")
}
