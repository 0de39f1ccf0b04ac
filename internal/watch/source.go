// Package watch supplies raw change notifications for a project tree and
// keeps the set of subscribed directories complete as the tree grows.
package watch

import (
	"errors"
	"fmt"

	"github.com/benaskins/devmode/internal/change"
)

// ErrSourceClosed is reported when a notification channel closes without
// the session having asked for it.
var ErrSourceClosed = errors.New("notification source closed")

// Notification is one raw change reported by a Source. Path is absolute.
type Notification struct {
	Path string
	Kind change.Kind
}

// Source delivers notifications for the directories added to it. A Source
// never watches recursively on its own; the Registrar adds every directory.
type Source interface {
	// Add subscribes a single directory.
	Add(dir string) error

	// Notifications is closed once the source shuts down.
	Notifications() <-chan Notification

	// Errors carries failures of the underlying notification channel.
	Errors() <-chan error

	Close() error
}

// Backend names accepted by NewSource.
const (
	BackendFsnotify = "fsnotify"
	BackendNotify   = "notify"
)

// NewSource creates the Source for the named backend. An empty name selects
// fsnotify.
func NewSource(backend string) (Source, error) {
	switch backend {
	case "", BackendFsnotify:
		return NewFsnotifySource()
	case BackendNotify:
		return NewNotifySource(), nil
	default:
		return nil, fmt.Errorf("unknown watch backend %q", backend)
	}
}
