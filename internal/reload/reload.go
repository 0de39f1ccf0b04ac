// Package reload tells the running application to pick up freshly built
// artifacts. A reload only ever follows a successful build.
package reload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

const defaultTimeout = 10 * time.Second

// Reloader performs one reload.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Func adapts a function to the Reloader interface.
type Func func(ctx context.Context) error

func (f Func) Reload(ctx context.Context) error { return f(ctx) }

// None does nothing; used when the application reloads on its own.
var None Reloader = Func(func(context.Context) error { return nil })

// Config selects and configures a reloader.
type Config struct {
	Type    string        // "none" | "touch" | "http" | "exec"
	Path    string        // touch: marker file
	URL     string        // http: endpoint to POST to
	Command string        // exec: shell command
	Dir     string        // exec: working directory
	Timeout time.Duration // http and exec
}

// New builds the reloader described by cfg.
func New(cfg Config) (Reloader, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	switch cfg.Type {
	case "", "none":
		return None, nil
	case "touch":
		if cfg.Path == "" {
			return nil, fmt.Errorf("touch reload requires a path")
		}
		return &Touch{Path: cfg.Path}, nil
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("http reload requires a url")
		}
		return &HTTP{URL: cfg.URL, Client: &http.Client{Timeout: timeout}}, nil
	case "exec":
		if cfg.Command == "" {
			return nil, fmt.Errorf("exec reload requires a command")
		}
		return &Exec{Command: cfg.Command, Dir: cfg.Dir, Timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown reload type: %s", cfg.Type)
	}
}

// Touch writes a marker file that the application server polls for, the
// way an exploded deployment is redeployed in place.
type Touch struct {
	Path string
}

func (t *Touch) Reload(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(t.Path), 0755); err != nil {
		return fmt.Errorf("creating reload marker dir: %w", err)
	}
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := os.WriteFile(t.Path, []byte(stamp), 0644); err != nil {
		return fmt.Errorf("writing reload marker: %w", err)
	}
	return nil
}

// HTTP asks the application to reload via a POST request.
type HTTP struct {
	URL    string
	Client *http.Client
}

func (h *HTTP) Reload(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("reload endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// Exec runs a shell command.
type Exec struct {
	Command string
	Dir     string
	Timeout time.Duration
}

func (e *Exec) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", e.Command)
	cmd.Dir = e.Dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command failed: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}
