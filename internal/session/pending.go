package session

import (
	"slices"

	"github.com/benaskins/devmode/internal/change"
)

// pending is what has changed since the last successful build. It is
// guarded by the scheduler's mutex.
type pending struct {
	cleanRequired bool
	changes       map[change.Key]struct{}
}

func newPending() *pending {
	return &pending{changes: make(map[change.Key]struct{})}
}

// fold adds a batch. A structural change makes clean sticky until a build
// succeeds, even if the deleted path comes back first.
func (p *pending) fold(b Batch) {
	for _, e := range b.Events {
		p.changes[e.Key()] = struct{}{}
	}
	if b.Structural {
		p.cleanRequired = true
	}
}

func (p *pending) reset() {
	p.cleanRequired = false
	clear(p.changes)
}

func (p *pending) count() int { return len(p.changes) }

func (p *pending) keys() []string {
	out := make([]string, 0, len(p.changes))
	for k := range p.changes {
		out = append(out, k.String())
	}
	slices.Sort(out)
	return out
}
