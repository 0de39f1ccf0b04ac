package watch

import (
	"os"
	"sync"

	"github.com/rjeczalik/notify"

	"github.com/benaskins/devmode/internal/change"
)

// notifyBuffer sizes the channel notify sends on. notify never blocks on a
// full channel; it drops the event instead.
const notifyBuffer = 4096

// NotifySource is a Source backed by rjeczalik/notify. The notify runtime
// has no error channel, so Errors never delivers. Events beyond
// notifyBuffer that arrive faster than the session drains them are lost
// without notice, as during a large checkout.
type NotifySource struct {
	events    chan notify.EventInfo
	out       chan Notification
	errs      chan error
	done      chan struct{}
	closeOnce sync.Once
}

func NewNotifySource() *NotifySource {
	s := &NotifySource{
		events: make(chan notify.EventInfo, notifyBuffer),
		out:    make(chan Notification, 64),
		errs:   make(chan error),
		done:   make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *NotifySource) Add(dir string) error {
	return notify.Watch(dir, s.events, notify.Create, notify.Remove, notify.Write, notify.Rename)
}

func (s *NotifySource) Notifications() <-chan Notification { return s.out }

func (s *NotifySource) Errors() <-chan error { return s.errs }

func (s *NotifySource) Close() error {
	s.closeOnce.Do(func() {
		notify.Stop(s.events)
		close(s.done)
	})
	return nil
}

func (s *NotifySource) forward() {
	defer close(s.out)
	for {
		select {
		case ei := <-s.events:
			n := Notification{Path: ei.Path(), Kind: notifyKind(ei.Event(), ei.Path())}
			select {
			case s.out <- n:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

// notifyKind maps a notify event. Both halves of a rename report
// notify.Rename, so the path's existence decides which half this is.
func notifyKind(ev notify.Event, path string) change.Kind {
	switch ev {
	case notify.Create:
		return change.Created
	case notify.Remove:
		return change.Deleted
	case notify.Rename:
		if _, err := os.Lstat(path); err == nil {
			return change.Created
		}
		return change.Deleted
	default:
		return change.Modified
	}
}
