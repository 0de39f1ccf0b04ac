package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Registrar owns the set of subscribed directories. The set only grows:
// deleted directories stay registered and simply stop producing events.
type Registrar struct {
	source  Source
	ignore  *Matcher
	logger  *slog.Logger
	mu      sync.Mutex
	watched map[string]struct{}
}

// NewRegistrar creates a Registrar that subscribes directories on source.
// ignore may be nil.
func NewRegistrar(source Source, ignore *Matcher, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.With("component", "registrar")
	}
	return &Registrar{
		source:  source,
		ignore:  ignore,
		logger:  logger,
		watched: make(map[string]struct{}),
	}
}

// RegisterTree subscribes root and every directory beneath it. It runs
// before any events are accepted so files created in a new subdirectory are
// never missed. Failing to subscribe root is fatal; failures below it are
// logged and skipped.
func (r *Registrar) RegisterTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("registering root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("registering root: %s is not a directory", root)
	}
	if err := r.RegisterDirectory(root); err != nil {
		return fmt.Errorf("registering root: %w", err)
	}
	r.registerBelow(root)
	r.logger.Info("watching source tree", "root", root, "directories", r.Len())
	return nil
}

// RegisterDirectory subscribes a single directory. Registering an already
// watched directory is a no-op.
func (r *Registrar) RegisterDirectory(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.watched[dir]; ok {
		return nil
	}
	if err := r.source.Add(dir); err != nil {
		r.logger.Warn("failed to watch directory", "path", dir, "error", err)
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	r.watched[dir] = struct{}{}
	r.logger.Debug("watch added", "path", dir, "active_watches", len(r.watched))
	return nil
}

// RegisterSubtree subscribes a newly created directory and anything already
// nested inside it; `mkdir -p a/b/c` raises a single create for a.
func (r *Registrar) RegisterSubtree(dir string) error {
	if r.ignore.Ignored(dir) {
		return nil
	}
	if err := r.RegisterDirectory(dir); err != nil {
		return err
	}
	r.registerBelow(dir)
	return nil
}

func (r *Registrar) registerBelow(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn("walk error", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() || path == dir {
			return nil
		}
		if r.ignore.Ignored(path) {
			return filepath.SkipDir
		}
		// best-effort: a failed subdirectory is already logged
		_ = r.RegisterDirectory(path)
		return nil
	})
}

// Watched returns the subscribed directories in sorted order.
func (r *Registrar) Watched() []string {
	r.mu.Lock()
	dirs := make([]string, 0, len(r.watched))
	for dir := range r.watched {
		dirs = append(dirs, dir)
	}
	r.mu.Unlock()
	slices.Sort(dirs)
	return dirs
}

func (r *Registrar) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watched)
}
