//go:build !windows

package toolpath

import "os"

// EnsureExecutable marks the binary executable.
func EnsureExecutable(path string) error {
	// #nosec G302 -- the tool must be executable by its owner and group
	return os.Chmod(path, 0o755)
}
