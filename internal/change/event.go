// Package change models a single observed file-system change inside the
// watched project tree.
package change

import (
	"cmp"
	"fmt"
	"slices"
)

// Kind is the type of change observed for a path.
type Kind int

const (
	Created Kind = iota + 1
	Deleted
	Modified
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Modified:
		return "modified"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "created", "create":
		return Created, nil
	case "deleted", "delete":
		return Deleted, nil
	case "modified", "modify":
		return Modified, nil
	}
	return 0, fmt.Errorf("unknown change kind %q", s)
}

// Key identifies a change for deduplication: the same path changing in the
// same way twice is one change.
type Key struct {
	Path string
	Kind Kind
}

func (k Key) String() string {
	return k.Path + "-" + k.Kind.String()
}

// Event is an immutable record of one change. Path is relative to the
// project root.
type Event struct {
	path     string
	kind     Kind
	compiled bool
}

// New creates an Event. compiled reports whether the path is source that
// produces a compiled artifact.
func New(path string, kind Kind, compiled bool) Event {
	return Event{path: path, kind: kind, compiled: compiled}
}

func (e Event) Path() string { return e.path }

func (e Event) Kind() Kind { return e.kind }

func (e Event) IsCompiledUnit() bool { return e.compiled }

func (e Event) Key() Key { return Key{Path: e.path, Kind: e.kind} }

// Equal compares by path and kind only.
func (e Event) Equal(other Event) bool {
	return e.Key() == other.Key()
}

func (e Event) String() string {
	return fmt.Sprintf("%s (%s, compiled=%t)", e.path, e.kind, e.compiled)
}

// Compare orders events lexicographically by path, then by kind.
func Compare(a, b Event) int {
	if c := cmp.Compare(a.path, b.path); c != 0 {
		return c
	}
	return cmp.Compare(a.kind, b.kind)
}

// Sort orders events in place for deterministic batch processing.
func Sort(events []Event) {
	slices.SortFunc(events, Compare)
}

// Dedup returns events sorted with duplicate (path, kind) pairs removed.
// The first occurrence of each key wins.
func Dedup(events []Event) []Event {
	seen := make(map[Key]struct{}, len(events))
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.Key()]; ok {
			continue
		}
		seen[e.Key()] = struct{}{}
		out = append(out, e)
	}
	Sort(out)
	return out
}
