// Package config loads the per-project dev-mode configuration from
// .devmode.yaml in the project root.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is looked up in the project root.
const FileName = ".devmode.yaml"

// Config holds everything a dev-mode session needs to know about a project.
// Relative paths are resolved against the project root by Resolve.
type Config struct {
	Goals            []string   `yaml:"goals"`
	SourceDir        string     `yaml:"source_dir"`
	ResourceDir      string     `yaml:"resource_dir"`
	TestDir          string     `yaml:"test_dir"`
	Ignore           []string   `yaml:"ignore,omitempty"`
	CompiledPatterns []string   `yaml:"compiled_patterns,omitempty"`
	PollTimeout      Duration   `yaml:"poll_timeout"`
	Debounce         Duration   `yaml:"debounce"`
	MaxBatchWait     Duration   `yaml:"max_batch_wait"`
	SkipUnchanged    bool       `yaml:"skip_unchanged,omitempty"`
	Backend          string     `yaml:"backend"` // "fsnotify" | "notify"
	Build            Build      `yaml:"build"`
	Reload           Reload     `yaml:"reload"`
	Vocabulary       Vocabulary `yaml:"vocabulary,omitempty"`
	History          string     `yaml:"history"`
	APISocket        string     `yaml:"api_socket"`
}

type Build struct {
	Type        string            `yaml:"type"` // "native" | "container"
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Image       string            `yaml:"image,omitempty"`
	Volumes     map[string]string `yaml:"volumes,omitempty"`
	Pull        bool              `yaml:"pull,omitempty"`
	StopTimeout Duration          `yaml:"stop_timeout"`
	LogLines    int               `yaml:"log_lines"`
}

type Reload struct {
	Type    string   `yaml:"type"` // "none" | "touch" | "http" | "exec"
	Path    string   `yaml:"path,omitempty"`
	URL     string   `yaml:"url,omitempty"`
	Command string   `yaml:"command,omitempty"`
	Timeout Duration `yaml:"timeout"`
}

// Vocabulary overrides the build tool's goal and flag words. Empty fields
// keep the Maven defaults.
type Vocabulary struct {
	Clean         string `yaml:"clean,omitempty"`
	SkipResources string `yaml:"skip_resources,omitempty"`
	SkipTests     string `yaml:"skip_tests,omitempty"`
	SkipTestRun   string `yaml:"skip_test_run,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "300ms", "1m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Default returns the configuration used when no file is present: a Maven
// project built with mvn on the host, reloaded by touching a marker file.
func Default() *Config {
	return &Config{
		Goals:        []string{"compile"},
		SourceDir:    "src",
		ResourceDir:  filepath.Join("src", "main", "resources"),
		TestDir:      filepath.Join("src", "test"),
		PollTimeout:  Duration{60 * time.Second},
		Debounce:     Duration{300 * time.Millisecond},
		MaxBatchWait: Duration{5 * time.Second},
		Backend:      "fsnotify",
		Build: Build{
			Type:        "native",
			Command:     "mvn",
			StopTimeout: Duration{10 * time.Second},
			LogLines:    500,
		},
		Reload: Reload{
			Type:    "touch",
			Path:    filepath.Join("target", ".reload"),
			Timeout: Duration{30 * time.Second},
		},
		History:   filepath.Join("target", "devmode", "history.log"),
		APISocket: filepath.Join("target", "devmode", "devmode.sock"),
	}
}

// DefaultPath returns the config file path for a project root.
func DefaultPath(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads a YAML config file from path on top of the defaults. If the
// file does not exist, it returns the defaults and no error. An empty or
// all-comment file also yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks for configuration errors.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Goals) == 0 {
		errs = append(errs, "goals is required")
	}
	if c.SourceDir == "" {
		errs = append(errs, "source_dir is required")
	}
	for name, d := range map[string]Duration{
		"poll_timeout":   c.PollTimeout,
		"debounce":       c.Debounce,
		"max_batch_wait": c.MaxBatchWait,
	} {
		if d.Duration <= 0 {
			errs = append(errs, name+" must be positive")
		}
	}
	if c.MaxBatchWait.Duration < c.Debounce.Duration {
		errs = append(errs, "max_batch_wait must not be shorter than debounce")
	}

	switch c.Backend {
	case "fsnotify", "notify":
	default:
		errs = append(errs, fmt.Sprintf("backend must be 'fsnotify' or 'notify', got %q", c.Backend))
	}

	switch c.Build.Type {
	case "native":
		if c.Build.Command == "" {
			errs = append(errs, "build.command is required for native builds")
		}
	case "container":
		if c.Build.Image == "" {
			errs = append(errs, "build.image is required for container builds")
		}
	default:
		errs = append(errs, fmt.Sprintf("build.type must be 'native' or 'container', got %q", c.Build.Type))
	}

	switch c.Reload.Type {
	case "", "none":
	case "touch":
		if c.Reload.Path == "" {
			errs = append(errs, "reload.path is required for touch reloads")
		}
	case "http":
		if c.Reload.URL == "" {
			errs = append(errs, "reload.url is required for http reloads")
		}
	case "exec":
		if c.Reload.Command == "" {
			errs = append(errs, "reload.command is required for exec reloads")
		}
	default:
		errs = append(errs, fmt.Sprintf("reload.type must be one of none, touch, http, exec; got %q", c.Reload.Type))
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Resolve makes a path from the config absolute against root.
func Resolve(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
