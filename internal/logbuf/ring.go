// Package logbuf keeps the tail of build output in memory so it can be
// shown after a failed build without re-running it.
package logbuf

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// Ring is a thread-safe buffer of the last N lines written to it. It
// implements io.Writer so it can be a build process's stdout and stderr.
// When echo is set, every write is also passed through to it.
type Ring struct {
	mu      sync.Mutex
	lines   []string
	pos     int
	full    bool
	total   int
	partial bytes.Buffer
	echo    io.Writer
}

// New creates a ring that keeps the last n lines. echo may be nil.
func New(n int, echo io.Writer) *Ring {
	if n <= 0 {
		n = 1
	}
	return &Ring{lines: make([]string, n), echo: echo}
}

// Write splits p on newlines and stores each complete line. An incomplete
// trailing line is held until the rest of it arrives.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.echo != nil {
		// build output must not fail because the terminal went away
		_, _ = r.echo.Write(p)
	}

	r.partial.Write(p)
	for {
		line, err := r.partial.ReadString('\n')
		if err != nil {
			r.partial.Reset()
			r.partial.WriteString(line)
			break
		}
		r.add(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (r *Ring) add(line string) {
	r.lines[r.pos] = line
	r.pos = (r.pos + 1) % len(r.lines)
	if r.pos == 0 {
		r.full = true
	}
	r.total++
}

// Reset discards everything, including a held partial line. Build invokers
// call it before each build so the buffer only ever holds one build.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.lines)
	r.pos = 0
	r.full = false
	r.total = 0
	r.partial.Reset()
}

// Lines returns stored lines oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.pos)
		copy(out, r.lines[:r.pos])
		return out
	}
	out := make([]string, len(r.lines))
	n := copy(out, r.lines[r.pos:])
	copy(out[n:], r.lines[:r.pos])
	return out
}

// Last returns up to n of the most recent lines.
func (r *Ring) Last(n int) []string {
	all := r.Lines()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Total counts every complete line written since the last Reset, including
// lines that have since been overwritten.
func (r *Ring) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
