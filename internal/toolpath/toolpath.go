// Package toolpath locates the tool binary and picks the directory it runs in.
package toolpath

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("tool binary not found")

// BinaryName appends the platform executable suffix.
func BinaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// AppDir is the per-user configuration directory for the application.
func AppDir(app string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(base, app), nil
}

// UpdatablePath is where a downloaded copy of the tool lives under appDir.
func UpdatablePath(name, appDir string) string {
	return filepath.Join(appDir, "bin", BinaryName(name))
}

// ResolveBinary finds the tool. An explicitly configured path wins; then the
// updatable copy under appDir; then PATH.
func ResolveBinary(name, configured, appDir string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrNotFound, configured, err)
		}
		return filepath.Abs(configured)
	}
	if appDir != "" {
		p := UpdatablePath(name, appDir)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	if name == "" {
		return "", fmt.Errorf("%w: no name", ErrNotFound)
	}
	p, err := exec.LookPath(BinaryName(name))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return filepath.Abs(p)
}

// WorkingDir returns the binary's directory when it is writable, else appDir
// (created on demand).
func WorkingDir(binary, appDir string) (string, error) {
	dir := filepath.Dir(binary)
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		if IsWritable(dir) {
			return dir, nil
		}
		slog.Warn("Tool binary directory is not writable", "dir", dir)
	}
	if appDir == "" {
		return "", errors.New("no writable working directory")
	}
	if err := os.MkdirAll(appDir, 0o750); err != nil {
		return "", fmt.Errorf("create working directory: %w", err)
	}
	return appDir, nil
}

// IsWritable probes dir by creating and removing a uniquely named file.
func IsWritable(dir string) bool {
	probe := filepath.Join(dir, ".procstream-write-test-"+uuid.NewString())
	f, err := os.OpenFile(probe, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return false
	}
	_ = f.Close()
	_ = os.Remove(probe)
	return true
}
