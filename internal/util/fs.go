package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates the per-session data directories on demand.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// SafeJoin joins an untrusted filename under root, discarding any
// directory components a client may have smuggled into it.
func SafeJoin(root, name string) string {
	return filepath.Join(root, filepath.Base(name))
}
