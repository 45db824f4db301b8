//go:build windows

package process

import (
	"os/exec"
	"testing"
)

func checkSysProcAttrs(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	if cmd.SysProcAttr == nil || cmd.SysProcAttr.CreationFlags&CREATE_NO_WINDOW == 0 {
		t.Fatalf("CREATE_NO_WINDOW not set")
	}
}
