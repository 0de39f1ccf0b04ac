package watch

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnores exclude VCS metadata and editor scratch files, which
// otherwise trigger a rebuild on every keystroke.
var DefaultIgnores = []string{
	"**/.git",
	"**/.git/**",
	"**/*.swp",
	"**/*.swo",
	"**/*.swx",
	"**/*~",
	"**/.#*",
	"**/.DS_Store",
}

// Matcher applies doublestar ignore patterns to paths under a root.
type Matcher struct {
	root     string
	patterns []string
}

// NewMatcher validates patterns eagerly so a bad glob fails at startup.
// The defaults are always included.
func NewMatcher(root string, patterns []string) (*Matcher, error) {
	all := make([]string, 0, len(DefaultIgnores)+len(patterns))
	all = append(all, DefaultIgnores...)
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
		all = append(all, p)
	}
	return &Matcher{root: root, patterns: all}, nil
}

// Ignored reports whether path (absolute, or relative to the root) matches
// any ignore pattern.
func (m *Matcher) Ignored(path string) bool {
	if m == nil {
		return false
	}
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(m.root, path)
		if err != nil {
			return false
		}
		rel = r
	}
	rel = filepath.ToSlash(rel)
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
