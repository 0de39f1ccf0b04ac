package change

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultCompiledPatterns match JVM sources that compile to class files.
var DefaultCompiledPatterns = []string{
	"**/*.java",
	"**/*.kt",
	"**/*.groovy",
	"**/*.scala",
}

// Classifier decides whether a relative path is a compiled unit.
type Classifier struct {
	patterns []string
}

// NewClassifier validates the glob patterns and returns a Classifier.
// A nil slice falls back to DefaultCompiledPatterns.
func NewClassifier(patterns []string) (*Classifier, error) {
	if patterns == nil {
		patterns = DefaultCompiledPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid compiled pattern %q", p)
		}
	}
	return &Classifier{patterns: patterns}, nil
}

// IsCompiledUnit reports whether rel matches any compiled pattern.
func (c *Classifier) IsCompiledUnit(rel string) bool {
	if c == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range c.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
