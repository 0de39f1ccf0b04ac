package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	ts := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	l.Record(Entry{Timestamp: ts, Build: 1, Outcome: OutcomeStarted, Goals: []string{"clean", "package"}, Changes: 2})
	l.Record(Entry{Timestamp: ts.Add(time.Second), Build: 1, Outcome: OutcomeFailed, ExitCode: Code(1), DurationMS: 1500})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var e Entry
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatal(err)
	}
	if e.Outcome != OutcomeFailed {
		t.Errorf("expected failed, got %v", e.Outcome)
	}
	if e.ExitCode == nil || *e.ExitCode != 1 {
		t.Errorf("expected exit code 1, got %v", e.ExitCode)
	}
}

func TestZeroExitCodeIsRecorded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Record(Entry{Build: 3, Outcome: OutcomeSucceeded, ExitCode: Code(0)})
	l.Close()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"exit_code":0`) {
		t.Errorf("expected exit_code 0 in %s", data)
	}
}

func TestLogDefaultsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	l, _ := Open(path)
	l.Record(Entry{Build: 1, Outcome: OutcomeStarted})
	l.Close()

	entries, err := Tail(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Timestamp.IsZero() {
		t.Errorf("expected timestamp to be set, got %+v", entries)
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	l, _ := Open(path)
	for i := uint64(1); i <= 5; i++ {
		l.Record(Entry{Build: i, Outcome: OutcomeStarted})
	}
	l.Close()

	entries, err := Tail(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Build != 4 || entries[1].Build != 5 {
		t.Errorf("expected builds 4 and 5, got %+v", entries)
	}
}

func TestTailMissingFile(t *testing.T) {
	entries, err := Tail(filepath.Join(t.TempDir(), "none.log"), 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestNilLogIsNoop(t *testing.T) {
	var l *Log
	if err := l.Record(Entry{Outcome: OutcomeStarted}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
