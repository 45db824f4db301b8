//go:build windows

package process

import (
	"syscall"
)

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const PROCESS_TERMINATE = 0x0001

// killProcess terminates the process by PID. A process that can no longer be
// opened has already exited and is treated as killed.
func killProcess(pid int) error {
	if pid <= 0 {
		return nil
	}
	ret, _, _ := procOpenProcess.Call(uintptr(PROCESS_TERMINATE), 0, uintptr(uint32(pid)))
	if ret == 0 {
		return nil
	}
	handle := syscall.Handle(ret)
	defer func() { _, _, _ = procCloseHandle.Call(uintptr(handle)) }()

	ok, _, err := procTerminateProcess.Call(uintptr(handle), uintptr(1))
	if ok == 0 {
		return err
	}
	return nil
}
