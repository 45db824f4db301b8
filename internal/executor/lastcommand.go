package executor

import (
	"sync"
	"time"
)

// CommandInfo describes the most recently launched tool command.
type CommandInfo struct {
	OperationID string    `json:"operation_id,omitempty"`
	Command     string    `json:"command"`
	Args        []string  `json:"args"`
	WorkingDir  string    `json:"working_dir"`
	StartedAt   time.Time `json:"started_at"`
}

var (
	lastMu  sync.RWMutex
	lastCmd *CommandInfo
)

func storeLastCommand(info CommandInfo) {
	info.Args = append([]string(nil), info.Args...)
	lastMu.Lock()
	lastCmd = &info
	lastMu.Unlock()
}

// LastCommand returns the last command launched by any executor in this
// process, for diagnostics.
func LastCommand() (CommandInfo, bool) {
	lastMu.RLock()
	defer lastMu.RUnlock()
	if lastCmd == nil {
		return CommandInfo{}, false
	}
	info := *lastCmd
	info.Args = append([]string(nil), lastCmd.Args...)
	return info, true
}
