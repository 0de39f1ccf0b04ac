package watch

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/benaskins/devmode/internal/change"
)

// FsnotifySource is the default Source, backed by fsnotify.
type FsnotifySource struct {
	watcher   *fsnotify.Watcher
	out       chan Notification
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

// NewFsnotifySource creates an fsnotify watcher and starts forwarding its
// events.
func NewFsnotifySource() (*FsnotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	s := &FsnotifySource{
		watcher: w,
		out:     make(chan Notification, 64),
		errs:    make(chan error, 4),
		done:    make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

func (s *FsnotifySource) Add(dir string) error {
	return s.watcher.Add(dir)
}

func (s *FsnotifySource) Notifications() <-chan Notification { return s.out }

func (s *FsnotifySource) Errors() <-chan error { return s.errs }

func (s *FsnotifySource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.watcher.Close()
	})
	return err
}

func (s *FsnotifySource) forward() {
	defer close(s.out)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			kind, ok := kindOf(event.Op)
			if !ok {
				continue
			}
			select {
			case s.out <- Notification{Path: event.Name, Kind: kind}:
			case <-s.done:
				return
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errs <- err:
			case <-s.done:
				return
			}

		case <-s.done:
			return
		}
	}
}

// kindOf maps an fsnotify op to a change kind. A rename reports the old
// name; the new name arrives separately as a create.
func kindOf(op fsnotify.Op) (change.Kind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return change.Created, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return change.Deleted, true
	case op.Has(fsnotify.Write):
		return change.Modified, true
	default:
		// chmod only
		return 0, false
	}
}
