package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `goals: [compile, war:exploded]
ignore:
  - "**/generated/**"
debounce: 500ms
max_batch_wait: 3s
backend: notify
skip_unchanged: true
build:
  type: container
  image: maven:3.9-eclipse-temurin-21
  command: mvn -q
  volumes:
    /root/.m2: /home/dev/.m2
reload:
  type: http
  url: http://127.0.0.1:8080/__reload
vocabulary:
  clean: cleanAll
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(cfg.Goals, []string{"compile", "war:exploded"}) {
		t.Errorf("Goals = %v", cfg.Goals)
	}
	if cfg.Debounce.Duration != 500*time.Millisecond {
		t.Errorf("Debounce = %v, want 500ms", cfg.Debounce.Duration)
	}
	if cfg.Backend != "notify" || !cfg.SkipUnchanged {
		t.Errorf("Backend = %q, SkipUnchanged = %v", cfg.Backend, cfg.SkipUnchanged)
	}
	if cfg.Build.Type != "container" || cfg.Build.Image != "maven:3.9-eclipse-temurin-21" {
		t.Errorf("Build = %+v", cfg.Build)
	}
	if cfg.Build.Volumes["/root/.m2"] != "/home/dev/.m2" {
		t.Errorf("Volumes = %v", cfg.Build.Volumes)
	}
	if cfg.Reload.URL != "http://127.0.0.1:8080/__reload" {
		t.Errorf("Reload.URL = %q", cfg.Reload.URL)
	}
	if cfg.Vocabulary.Clean != "cleanAll" {
		t.Errorf("Vocabulary.Clean = %q", cfg.Vocabulary.Clean)
	}
	// Untouched keys keep their defaults.
	if cfg.PollTimeout.Duration != 60*time.Second {
		t.Errorf("PollTimeout = %v, want default 60s", cfg.PollTimeout.Duration)
	}
	if cfg.Build.StopTimeout.Duration != 10*time.Second {
		t.Errorf("StopTimeout = %v, want default 10s", cfg.Build.StopTimeout.Duration)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	cfg, err := Load("/nonexistent/path/.devmode.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := Default()
	if !slices.Equal(cfg.Goals, def.Goals) || cfg.Build.Command != "mvn" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Reload.Type != "touch" {
		t.Errorf("Reload.Type = %q, want touch", cfg.Reload.Type)
	}
}

func TestLoadCommentsOnly(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "# goals: [package]\n# debounce: 1s\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Debounce.Duration != 300*time.Millisecond {
		t.Errorf("Debounce = %v, want default", cfg.Debounce.Duration)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Parallel()
	_, err := Load(writeConfig(t, "debounce: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected invalid duration error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no goals", func(c *Config) { c.Goals = nil }, "goals is required"},
		{"no source dir", func(c *Config) { c.SourceDir = "" }, "source_dir is required"},
		{"zero debounce", func(c *Config) { c.Debounce = Duration{} }, "debounce must be positive"},
		{"batch shorter than debounce", func(c *Config) { c.MaxBatchWait = Duration{time.Millisecond} }, "max_batch_wait must not be shorter"},
		{"bad backend", func(c *Config) { c.Backend = "inotify" }, "backend must be"},
		{"bad build type", func(c *Config) { c.Build.Type = "remote" }, "build.type must be"},
		{"native without command", func(c *Config) { c.Build.Command = "" }, "build.command is required"},
		{"container without image", func(c *Config) { c.Build.Type = "container" }, "build.image is required"},
		{"http without url", func(c *Config) { c.Reload.Type = "http" }, "reload.url is required"},
		{"exec without command", func(c *Config) { c.Reload.Type = "exec" }, "reload.command is required"},
		{"bad reload type", func(c *Config) { c.Reload.Type = "signal" }, "reload.type must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	if got := Resolve("/work/app", "src"); got != filepath.Join("/work/app", "src") {
		t.Errorf("Resolve relative = %q", got)
	}
	if got := Resolve("/work/app", "/abs/x"); got != "/abs/x" {
		t.Errorf("Resolve absolute = %q", got)
	}
	if got := Resolve("/work/app", ""); got != "" {
		t.Errorf("Resolve empty = %q", got)
	}
}
