// Package history records every build the session schedules to an
// append-only log of newline-delimited JSON, so a developer can see why a
// rebuild ran with the goals it did.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Outcome describes what happened to a build.
type Outcome string

const (
	OutcomeStarted      Outcome = "started"
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeFailed       Outcome = "failed"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeReloadFailed Outcome = "reload_failed"
)

// Entry is a single history record.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	Build      uint64    `json:"build"`
	Outcome    Outcome   `json:"outcome"`
	Goals      []string  `json:"goals,omitempty"`
	Changes    int       `json:"changes,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Recorder accepts history entries. A nil *Log is a valid Recorder that
// drops everything.
type Recorder interface {
	Record(entry Entry) error
}

// Log appends entries to a file.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open creates or opens a history file for appending.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening build history: %w", err)
	}
	return &Log{file: f}, nil
}

func (l *Log) Record(entry Entry) error {
	if l == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling history entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing history entry: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// Tail reads the last n entries from a history file. A missing file has no
// entries. Lines that fail to parse are skipped.
func Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening build history: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading build history: %w", err)
	}
	return entries, nil
}

// Code returns a pointer to an exit code, for Entry.ExitCode.
func Code(c int) *int { return &c }
