package process

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/procstream/internal/metrics"
)

// ErrBusy is returned by Acquire while another operation holds the registry.
var ErrBusy = errors.New("another operation is already running")

// Handle is a snapshot of the operation currently admitted by a Registry.
type Handle struct {
	OperationID string    `json:"operation_id"`
	PID         int       `json:"pid"`
	Since       time.Time `json:"since"`
}

// Registry admits at most one operation at a time and records the pid of its
// subprocess so an out-of-band Kill can reach it. The admission lease outlives
// the pid slot: it is released only after the operation has fully finished.
type Registry struct {
	mu    sync.Mutex
	lease *Lease
	pid   int
}

func NewRegistry() *Registry { return &Registry{} }

// Default is the process-wide registry used when callers do not supply one.
var Default = NewRegistry()

// Lease is the admission token returned by Acquire.
type Lease struct {
	reg         *Registry
	operationID string
	since       time.Time
	cancelled   atomic.Bool
}

// Acquire admits operationID, or returns ErrBusy when another lease is held.
func (r *Registry) Acquire(operationID string) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lease != nil {
		return nil, fmt.Errorf("%w: %s", ErrBusy, r.lease.operationID)
	}
	l := &Lease{reg: r, operationID: operationID, since: time.Now()}
	r.lease = l
	r.pid = 0
	return l, nil
}

// Current reports the admitted operation. PID is zero while the subprocess is
// spawning or after it has exited.
func (r *Registry) Current() (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lease == nil {
		return Handle{}, false
	}
	return Handle{OperationID: r.lease.operationID, PID: r.pid, Since: r.lease.since}, true
}

func (r *Registry) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

// Kill force-terminates the recorded subprocess and its process group, and
// clears the pid slot. It is a no-op when nothing is running. The signal is
// sent while the registry lock is held, so the pid cannot be recycled by a
// newly admitted operation.
//
// The lease is marked cancelled only when the cancel can still affect the
// outcome: while spawning, or while the tool itself is alive. A tool that has
// already exited keeps its own result; leftover group members are still killed.
func (r *Registry) Kill() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lease == nil {
		return nil
	}
	pid := r.pid
	if pid == 0 {
		r.lease.cancelled.Store(true)
		return nil
	}
	r.pid = 0

	alive, err := gproc.PidExists(int32(pid))
	if err != nil {
		alive = true
	}
	if alive {
		r.lease.cancelled.Store(true)
	}
	if err := killProcess(pid); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	if !alive {
		slog.Debug("Process already exited before kill, group swept", "pid", pid)
		return nil
	}
	metrics.IncKill("cancel")
	slog.Info("Process killed", "pid", pid, "operation_id", r.currentID())
	return nil
}

func (r *Registry) currentID() string {
	if r.lease == nil {
		return ""
	}
	return r.lease.operationID
}

func (l *Lease) OperationID() string { return l.operationID }

// Cancelled reports whether Kill reached this lease's operation before it
// exited on its own.
func (l *Lease) Cancelled() bool { return l.cancelled.Load() }

// SetPID records the spawned subprocess.
func (l *Lease) SetPID(pid int) {
	l.reg.mu.Lock()
	if l.reg.lease == l {
		l.reg.pid = pid
	}
	l.reg.mu.Unlock()
}

// ClearPID empties the pid slot once the subprocess has been reaped.
func (l *Lease) ClearPID() {
	l.reg.mu.Lock()
	if l.reg.lease == l {
		l.reg.pid = 0
	}
	l.reg.mu.Unlock()
}

// Release ends admission. It is safe to call more than once.
func (l *Lease) Release() {
	l.reg.mu.Lock()
	if l.reg.lease == l {
		l.reg.lease = nil
		l.reg.pid = 0
	}
	l.reg.mu.Unlock()
}
