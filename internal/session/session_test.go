package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benaskins/devmode/internal/build"
	"github.com/benaskins/devmode/internal/change"
	"github.com/benaskins/devmode/internal/watch"
)

type fakeSource struct {
	mu     sync.Mutex
	added  []string
	out    chan watch.Notification
	errs   chan error
	closed atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		out:  make(chan watch.Notification, 16),
		errs: make(chan error, 1),
	}
}

func (f *fakeSource) Add(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, dir)
	return nil
}

func (f *fakeSource) Notifications() <-chan watch.Notification { return f.out }
func (f *fakeSource) Errors() <-chan error                     { return f.errs }

func (f *fakeSource) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeSource) watching(dir string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.added, dir)
}

type recordingInvoker struct {
	requests chan build.Request
	exit     int
}

func (r *recordingInvoker) Run(ctx context.Context, req build.Request) (build.Result, error) {
	r.requests <- req
	return build.Result{ExitCode: r.exit}, nil
}

type harness struct {
	root    string
	source  *fakeSource
	invoker *recordingInvoker
	session *Session
	errc    chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"src/main/java", "src/main/resources", "src/test/java"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	h := &harness{
		root:    root,
		source:  newFakeSource(),
		invoker: &recordingInvoker{requests: make(chan build.Request, 8)},
		errc:    make(chan error, 1),
	}
	s, err := New(Config{
		Layout:       DefaultLayout(root),
		BaseGoals:    []string{"compile"},
		PollTimeout:  50 * time.Millisecond,
		Debounce:     20 * time.Millisecond,
		MaxBatchWait: time.Second,
		Source:       h.source,
		Invoker:      h.invoker,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.session = s
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	go func() { h.errc <- h.session.Start(context.Background()) }()
	t.Cleanup(h.session.Stop)

	deadline := time.Now().Add(5 * time.Second)
	for !h.session.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("session did not start")
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) send(rel string, kind change.Kind) {
	h.source.out <- watch.Notification{Path: filepath.Join(h.root, rel), Kind: kind}
}

func (h *harness) nextBuild(t *testing.T) []string {
	t.Helper()
	select {
	case req := <-h.invoker.requests:
		return req.Goals
	case <-time.After(5 * time.Second):
		t.Fatal("no build started")
		return nil
	}
}

func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit")
		return nil
	}
}

func TestSingleEditBuildsIncrementally(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.send("src/main/java/A.java", change.Modified)
	got := h.nextBuild(t)
	want := []string{"compile", "-Dmaven.resources.skip=true", "-Dmaven.test.skip=true"}
	if !slices.Equal(got, want) {
		t.Errorf("got goals %v, want %v", got, want)
	}
}

func TestDeleteBuildsClean(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.send("src/main/java/Old.java", change.Deleted)
	got := h.nextBuild(t)
	want := []string{"clean", "compile", "-Dmaven.test.skip=true"}
	if !slices.Equal(got, want) {
		t.Errorf("got goals %v, want %v", got, want)
	}
}

func TestBurstIsOneBatch(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.send("src/main/java/A.java", change.Modified)
	h.send("src/main/java/A.java", change.Modified)
	h.send("src/main/resources/app.properties", change.Modified)

	got := h.nextBuild(t)
	want := []string{"clean", "compile", "-Dmaven.test.skip=true"}
	if !slices.Equal(got, want) {
		t.Errorf("got goals %v, want %v", got, want)
	}
	select {
	case extra := <-h.invoker.requests:
		t.Errorf("expected a single build, got another with %v", extra.Goals)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCreatedDirectoryIsWatched(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	dir := filepath.Join(h.root, "src/main/java/pkg")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	h.send("src/main/java/pkg", change.Created)
	h.nextBuild(t)

	if !h.source.watching(dir) {
		t.Errorf("expected %s to be watched", dir)
	}
	if n := h.session.Status().WatchedDirs; n != 7 {
		t.Errorf("expected 7 watched directories, got %d", n)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.session.Stop()
	h.session.Stop()
	if err := h.wait(t); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
	<-h.session.Done()
	if !h.source.closed.Load() {
		t.Error("expected source closed")
	}
	if h.session.Status().Running {
		t.Error("expected session not running")
	}
	h.session.Stop()
}

func TestContextCancelStops(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.errc <- h.session.Start(ctx) }()
	cancel()
	if err := h.wait(t); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestSourceErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.source.errs <- errors.New("event queue overflow")
	if err := h.wait(t); err == nil {
		t.Fatal("expected source error to end the session")
	}
	if !h.source.closed.Load() {
		t.Error("expected source closed after failure")
	}
}

func TestSourceClosedIsFatal(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	close(h.source.out)
	if err := h.wait(t); !errors.Is(err, watch.ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed, got %v", err)
	}
}

func TestMissingSourceTreeIsFatal(t *testing.T) {
	h := newHarness(t)
	if err := os.RemoveAll(filepath.Join(h.root, "src")); err != nil {
		t.Fatal(err)
	}
	if err := h.session.Start(context.Background()); err == nil {
		t.Fatal("expected error for missing source tree")
	}
	if !h.source.closed.Load() {
		t.Error("expected source closed")
	}
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	if err := h.session.Start(context.Background()); err == nil {
		t.Error("expected second Start to fail")
	}
}

func TestManualRebuild(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.session.Rebuild()
	got := h.nextBuild(t)
	if got[0] != "clean" {
		t.Errorf("expected clean rebuild, got %v", got)
	}
}

func TestIgnoredOnlyBatchDoesNotBuild(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.send("src/main/java/.A.java.swp", change.Modified)
	select {
	case req := <-h.invoker.requests:
		t.Errorf("unexpected build %v", req.Goals)
	case <-time.After(150 * time.Millisecond):
	}
	if h.session.Status().Batches != 0 {
		t.Error("expected no batches counted")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Invoker: &recordingInvoker{}}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := New(Config{Source: newFakeSource()}); err == nil {
		t.Error("expected error without invoker")
	}
}
