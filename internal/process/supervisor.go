package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/procstream/internal/metrics"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateSpawning  State = "spawning"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateKilled    State = "killed"
)

const (
	DefaultInactivityTimeout = 30 * time.Second
	DefaultPollInterval      = time.Second
	DefaultDrainTimeout      = 5 * time.Second
)

// Options tune the watchdog. Zero values fall back to the defaults.
type Options struct {
	InactivityTimeout time.Duration
	PollInterval      time.Duration
	DrainTimeout      time.Duration
	// SampleResources records CPU and RSS of the child on every poll tick.
	SampleResources bool
}

func (o Options) withDefaults() Options {
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = DefaultInactivityTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	return o
}

// Idler reports how long the watched streams have been silent.
type Idler interface {
	Idle() time.Duration
}

// Result describes how a supervised subprocess ended.
type Result struct {
	State      State
	PID        int
	ExitCode   int
	Err        error
	Idle       time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
}

// Success reports a clean exit. A non-zero exit code after normal completion
// still counts as completed, but not as success.
func (r Result) Success() bool { return r.State == StateCompleted && r.Err == nil }

func (r Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Supervisor owns one subprocess from spawn until it is reaped.
type Supervisor struct {
	spec  Spec
	lease *Lease
	opts  Options

	cmd       *exec.Cmd
	stdout    *os.File
	stderr    *os.File
	exitCh    chan error
	startedAt time.Time
	closeOnce sync.Once

	mu    sync.Mutex
	state State
}

func NewSupervisor(spec Spec, lease *Lease, opts Options) *Supervisor {
	return &Supervisor{spec: spec, lease: lease, opts: opts.withDefaults(), state: StateSpawning}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start spawns the subprocess with both output streams attached to pipes the
// supervisor owns. On error nothing is left running and no pipe stays open.
func (s *Supervisor) Start() error {
	if err := s.spec.Validate(); err != nil {
		return err
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		return err
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return err
	}
	cmd := s.spec.BuildCommand()
	cmd.Stdout = outW
	cmd.Stderr = errW
	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{outR, outW, errR, errW} {
			_ = f.Close()
		}
		return err
	}
	// the child holds its own copies of the write ends
	_ = outW.Close()
	_ = errW.Close()

	s.cmd = cmd
	s.stdout, s.stderr = outR, errR
	s.startedAt = time.Now()
	s.exitCh = make(chan error, 1)
	go func() { s.exitCh <- cmd.Wait() }()

	s.setState(StateRunning)
	if s.lease != nil {
		s.lease.SetPID(cmd.Process.Pid)
		if s.lease.Cancelled() {
			// cancel arrived while spawning
			_ = killProcess(cmd.Process.Pid)
		}
	}
	slog.Info("Process started", "operation_id", s.spec.OperationID, "pid", cmd.Process.Pid, "binary", s.spec.Binary)
	return nil
}

func (s *Supervisor) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *Supervisor) Stdout() io.Reader { return s.stdout }
func (s *Supervisor) Stderr() io.Reader { return s.stderr }

// CloseOutputs closes the read ends of both pipes, unblocking any reader still
// waiting on a grandchild that inherited the write ends.
func (s *Supervisor) CloseOutputs() {
	s.closeOnce.Do(func() {
		if s.stdout != nil {
			_ = s.stdout.Close()
		}
		if s.stderr != nil {
			_ = s.stderr.Close()
		}
	})
}

func (s *Supervisor) DrainTimeout() time.Duration { return s.opts.DrainTimeout }

// Watch polls until the subprocess exits, ctx is cancelled, or the streams
// stay silent past the inactivity threshold. Every path reaps the child and
// clears the registry pid slot before returning.
func (s *Supervisor) Watch(ctx context.Context, idle Idler) Result {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	defer func() {
		if s.lease != nil {
			s.lease.ClearPID()
		}
		if s.opts.SampleResources {
			metrics.ResetProcessGauges()
		}
	}()

	for {
		select {
		case err := <-s.exitCh:
			return s.exited(err)
		case <-ctx.Done():
			return s.terminate(StateKilled, "cancel", 0)
		case <-ticker.C:
			select {
			case err := <-s.exitCh:
				return s.exited(err)
			default:
			}
			if s.opts.SampleResources {
				if _, err := metrics.SampleProcess(s.PID()); err != nil {
					slog.Debug("Resource sample failed", "pid", s.PID(), "error", err)
				}
			}
			if d := idle.Idle(); d > s.opts.InactivityTimeout {
				slog.Warn("Process produced no output, killing", "operation_id", s.spec.OperationID, "pid", s.PID(), "idle", d)
				return s.terminate(StateTimedOut, "timeout", d)
			}
		}
	}
}

func (s *Supervisor) exited(err error) Result {
	r := s.result(err, true)
	if s.lease != nil && s.lease.Cancelled() {
		r.State = StateKilled
	} else {
		r.State = StateCompleted
	}
	s.setState(r.State)
	slog.Info("Process exited", "operation_id", s.spec.OperationID, "pid", r.PID, "state", r.State, "exit_code", r.ExitCode)
	return r
}

func (s *Supervisor) terminate(state State, reason string, idle time.Duration) Result {
	pid := s.PID()
	if err := killProcess(pid); err != nil {
		slog.Error("Failed to kill process", "operation_id", s.spec.OperationID, "pid", pid, "error", err)
	}
	metrics.IncKill(reason)

	var (
		waitErr error
		reaped  bool
	)
	select {
	case waitErr = <-s.exitCh:
		reaped = true
	case <-time.After(s.opts.DrainTimeout):
		slog.Error("Process not reaped after kill", "operation_id", s.spec.OperationID, "pid", pid)
	}
	r := s.result(waitErr, reaped)
	r.State = state
	r.Idle = idle
	s.setState(state)
	return r
}

// result must only read ProcessState once Wait has returned.
func (s *Supervisor) result(err error, reaped bool) Result {
	r := Result{PID: s.PID(), ExitCode: -1, Err: err, StartedAt: s.startedAt, FinishedAt: time.Now()}
	if reaped && s.cmd.ProcessState != nil {
		r.ExitCode = s.cmd.ProcessState.ExitCode()
	}
	var ee *exec.ExitError
	if err != nil && !errors.As(err, &ee) {
		slog.Debug("Wait returned non-exit error", "pid", r.PID, "error", err)
	}
	return r
}
