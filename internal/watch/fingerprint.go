package watch

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Fingerprints remembers the content hash of each observed file so that
// writes which leave the content unchanged (editor save-without-edit,
// formatters that make no changes) can be dropped.
type Fingerprints struct {
	mu   sync.Mutex
	sums map[string]uint64
}

func NewFingerprints() *Fingerprints {
	return &Fingerprints{sums: make(map[string]uint64)}
}

// HashFile computes the xxHash64 of a file's contents.
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum64(), nil
}

// Changed rehashes path and reports whether its content differs from the
// previous observation. Unknown and unreadable files count as changed.
func (f *Fingerprints) Changed(path string) bool {
	sum, err := HashFile(path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		delete(f.sums, path)
		return true
	}
	prev, ok := f.sums[path]
	f.sums[path] = sum
	return !ok || prev != sum
}

// Forget drops the remembered hash, e.g. after the file is deleted.
func (f *Fingerprints) Forget(path string) {
	f.mu.Lock()
	delete(f.sums, path)
	f.mu.Unlock()
}

func (f *Fingerprints) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sums)
}
