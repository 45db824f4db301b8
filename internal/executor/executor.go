// Package executor runs one external tool invocation at a time, streaming its
// output as events and reporting a single terminal result.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/procstream/internal/event"
	"github.com/loykin/procstream/internal/history"
	"github.com/loykin/procstream/internal/metrics"
	"github.com/loykin/procstream/internal/process"
	"github.com/loykin/procstream/internal/stream"
)

// Invocation is one request to run the tool.
type Invocation struct {
	OperationID string
	Binary      string
	Args        []string
	WorkDir     string
	Env         []string
}

func (inv Invocation) spec() process.Spec {
	return process.Spec{OperationID: inv.OperationID, Binary: inv.Binary, Args: inv.Args, WorkDir: inv.WorkDir, Env: inv.Env}
}

// Executor launches invocations and publishes their events to a sink.
type Executor struct {
	sink     event.Sink
	registry *process.Registry
	opts     process.Options
	history  history.Sink
	histWait time.Duration
}

type Option func(*Executor)

func WithRegistry(r *process.Registry) Option { return func(e *Executor) { e.registry = r } }

func WithInactivityTimeout(d time.Duration) Option {
	return func(e *Executor) { e.opts.InactivityTimeout = d }
}

func WithPollInterval(d time.Duration) Option { return func(e *Executor) { e.opts.PollInterval = d } }

func WithDrainTimeout(d time.Duration) Option { return func(e *Executor) { e.opts.DrainTimeout = d } }

// WithResourceSampling exports the child's CPU and RSS on every watchdog tick.
func WithResourceSampling(on bool) Option { return func(e *Executor) { e.opts.SampleResources = on } }

// WithHistory sends a record of every spawned invocation to s.
func WithHistory(s history.Sink) Option { return func(e *Executor) { e.history = s } }

// New returns an executor publishing to sink. A nil sink discards events.
func New(sink event.Sink, opts ...Option) *Executor {
	if sink == nil {
		sink = event.Discard
	}
	e := &Executor{sink: sink, registry: process.Default, histWait: 5 * time.Second}
	for _, o := range opts {
		o(e)
	}
	if e.opts.InactivityTimeout <= 0 {
		e.opts.InactivityTimeout = process.DefaultInactivityTimeout
	}
	return e
}

func (e *Executor) Registry() *process.Registry { return e.registry }

func (e *Executor) InactivityTimeout() time.Duration { return e.opts.InactivityTimeout }

// Cancel kills whatever subprocess the registry currently records. It
// succeeds when nothing is running.
func (e *Executor) Cancel() error { return e.registry.Kill() }

// Execute runs inv to completion and returns its captured stdout, lines
// joined by '\n'.
func (e *Executor) Execute(ctx context.Context, inv Invocation) (string, error) {
	run, err := e.Start(ctx, inv)
	if err != nil {
		return "", err
	}
	return run.Wait()
}

// Start admits and spawns inv, then supervises it in the background. Errors
// returned here (invalid input, busy, spawn failure) emit no events. The
// invocation ends when ctx is cancelled, Cancel is called, the tool exits, or
// it stays silent past the inactivity timeout.
func (e *Executor) Start(ctx context.Context, inv Invocation) (*Run, error) {
	if strings.TrimSpace(inv.OperationID) == "" {
		return nil, &Error{Kind: ErrInvalid, Detail: "operation id is required"}
	}
	if strings.TrimSpace(inv.Binary) == "" {
		return nil, &Error{Kind: ErrInvalid, OperationID: inv.OperationID, Err: process.ErrNoBinary}
	}

	lease, err := e.registry.Acquire(inv.OperationID)
	if err != nil {
		return nil, err
	}

	storeLastCommand(CommandInfo{
		OperationID: inv.OperationID,
		Command:     inv.Binary,
		Args:        inv.Args,
		WorkingDir:  inv.WorkDir,
		StartedAt:   time.Now().UTC(),
	})
	slog.Info("Executing tool", "operation_id", inv.OperationID, "binary", inv.Binary, "args", inv.Args, "cwd", inv.WorkDir)

	sup := process.NewSupervisor(inv.spec(), lease, e.opts)
	if err := sup.Start(); err != nil {
		lease.Release()
		slog.Error("Failed to spawn tool", "operation_id", inv.OperationID, "binary", inv.Binary, "error", err)
		return nil, &Error{Kind: ErrSpawn, OperationID: inv.OperationID, Err: err}
	}
	metrics.IncStarted()

	run := &Run{OperationID: inv.OperationID, PID: sup.PID(), done: make(chan struct{})}
	go e.supervise(ctx, inv, sup, lease, run)
	return run, nil
}

func (e *Executor) supervise(ctx context.Context, inv Invocation, sup *process.Supervisor, lease *process.Lease, run *Run) {
	var (
		seen     = stream.NewSeenLines()
		activity = stream.NewActivity()
		stdout   stream.Capture
		stderr   stream.Capture
		lines    [2]int
	)
	pump := func(origin event.Origin, c *stream.Capture) stream.Pump {
		return stream.Pump{OperationID: inv.OperationID, Origin: origin, Sink: e.sink, Seen: seen, Capture: c, Activity: activity}
	}

	var g errgroup.Group
	g.Go(func() error { lines[0] = pump(event.Stdout, &stdout).Run(sup.Stdout()); return nil })
	g.Go(func() error { lines[1] = pump(event.Stderr, &stderr).Run(sup.Stderr()); return nil })

	res := sup.Watch(ctx, activity)
	joinPumps(&g, sup, inv.OperationID)
	sup.CloseOutputs()
	metrics.AddSuppressed(seen.Suppressed())

	out := stdout.Join()
	err := e.classify(inv.OperationID, res, stderr.Join())

	var errText string
	if err != nil {
		errText = err.Message()
	}
	e.sink.PublishComplete(event.NewCompletion(inv.OperationID, err == nil, errText))
	lease.Release()
	metrics.ObserveFinished(string(res.State), err == nil, res.Duration().Seconds())

	e.record(inv, res, err == nil, errText, lines[0]+lines[1])

	run.result = res
	if err != nil {
		run.err = err
		slog.Warn("Tool invocation failed", "operation_id", inv.OperationID, "state", res.State, "error", errText)
	} else {
		run.out = out
		slog.Info("Tool invocation completed", "operation_id", inv.OperationID, "lines", lines[0]+lines[1], "duration", res.Duration())
	}
	close(run.done)
}

// joinPumps waits for both pumps to reach EOF. Grandchildren that inherited
// the pipes can keep them open after the tool exits; past the drain timeout
// the read ends are closed so the pumps end.
func joinPumps(g *errgroup.Group, sup *process.Supervisor, operationID string) {
	drained := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(sup.DrainTimeout()):
		slog.Warn("Output streams still open after exit, closing", "operation_id", operationID)
		sup.CloseOutputs()
		<-drained
	}
}

func (e *Executor) classify(operationID string, res process.Result, stderrText string) *Error {
	switch res.State {
	case process.StateTimedOut:
		return &Error{Kind: ErrInactivityTimeout, OperationID: operationID, Detail: timeoutMessage(e.opts.InactivityTimeout)}
	case process.StateKilled:
		return &Error{Kind: ErrCancelled, OperationID: operationID, Detail: stderrText}
	}
	if res.Success() && res.ExitCode == 0 {
		return nil
	}
	if stderrText == "" && res.Err != nil {
		return &Error{Kind: ErrSubprocess, OperationID: operationID, Err: res.Err}
	}
	return &Error{Kind: ErrSubprocess, OperationID: operationID, Detail: stderrText}
}

func (e *Executor) record(inv Invocation, res process.Result, success bool, errText string, lines int) {
	if e.history == nil {
		return
	}
	rec := history.Record{
		OperationID: inv.OperationID,
		Command:     inv.Binary,
		Args:        inv.Args,
		WorkDir:     inv.WorkDir,
		PID:         res.PID,
		State:       string(res.State),
		Success:     success,
		ExitCode:    res.ExitCode,
		Error:       errText,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Lines:       lines,
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.histWait)
	defer cancel()
	if err := e.history.Send(ctx, history.Event{Type: history.EventComplete, OccurredAt: time.Now().UTC(), Record: rec}); err != nil {
		slog.Warn("Failed to record operation history", "operation_id", inv.OperationID, "error", err)
	}
}

// Run is a started invocation.
type Run struct {
	OperationID string
	PID         int

	done   chan struct{}
	out    string
	err    error
	result process.Result
}

// Done is closed once the CompletionEvent has been published.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the invocation ends and returns its captured stdout or
// its terminal *Error.
func (r *Run) Wait() (string, error) {
	<-r.done
	return r.out, r.err
}

// Result reports how the subprocess ended. Valid after Done is closed.
func (r *Run) Result() process.Result {
	<-r.done
	return r.result
}

func (r *Run) String() string { return fmt.Sprintf("run %s (pid %d)", r.OperationID, r.PID) }
