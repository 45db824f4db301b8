//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// killProcess sends SIGKILL to the process group led by pid, falling back to
// the single process when no such group exists. A process that is already
// gone is not an error.
func killProcess(pid int) error {
	if pid <= 0 {
		return nil
	}
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, syscall.SIGKILL)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
