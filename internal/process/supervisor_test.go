package process

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIdle struct{ d atomic.Int64 }

func (f *fakeIdle) Idle() time.Duration { return time.Duration(f.d.Load()) }

func fastOpts() Options {
	return Options{InactivityTimeout: 200 * time.Millisecond, PollInterval: 20 * time.Millisecond, DrainTimeout: time.Second}
}

func drain(t *testing.T, s *Supervisor) (string, string) {
	t.Helper()
	outCh, errCh := make(chan string, 1), make(chan string, 1)
	go func() { b, _ := io.ReadAll(s.Stdout()); outCh <- string(b) }()
	go func() { b, _ := io.ReadAll(s.Stderr()); errCh <- string(b) }()
	return <-outCh, <-errCh
}

func TestSupervisor_Completes(t *testing.T) {
	requireUnix(t)
	reg := NewRegistry()
	l, err := reg.Acquire("op")
	require.NoError(t, err)
	defer l.Release()

	s := NewSupervisor(Spec{OperationID: "op", Binary: "/bin/sh", Args: []string{"-c", "echo out; echo err >&2"}}, l, fastOpts())
	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, s.PID(), reg.PID())

	out, errOut := drain(t, s)
	res := s.Watch(context.Background(), &fakeIdle{})
	s.CloseOutputs()

	assert.Equal(t, "out\n", out)
	assert.Equal(t, "err\n", errOut)
	assert.Equal(t, StateCompleted, res.State)
	assert.True(t, res.Success())
	assert.Equal(t, 0, res.ExitCode)
	assert.Zero(t, reg.PID(), "pid slot cleared on exit")
	_, held := reg.Current()
	assert.True(t, held, "lease outlives the pid slot")
}

func TestSupervisor_NonZeroExit(t *testing.T) {
	requireUnix(t)
	s := NewSupervisor(Spec{Binary: "/bin/sh", Args: []string{"-c", "exit 3"}}, nil, fastOpts())
	require.NoError(t, s.Start())
	drain(t, s)
	res := s.Watch(context.Background(), &fakeIdle{})
	assert.Equal(t, StateCompleted, res.State)
	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitCode)
}

func TestSupervisor_InactivityKill(t *testing.T) {
	requireUnix(t)
	s := NewSupervisor(Spec{Binary: "sleep", Args: []string{"30"}}, nil, fastOpts())
	require.NoError(t, s.Start())
	idle := &fakeIdle{}
	idle.d.Store(int64(time.Second))

	start := time.Now()
	res := s.Watch(context.Background(), idle)
	s.CloseOutputs()
	assert.Equal(t, StateTimedOut, res.State)
	assert.Equal(t, time.Second, res.Idle)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, res.Success())
}

func TestSupervisor_ContextCancelKills(t *testing.T) {
	requireUnix(t)
	s := NewSupervisor(Spec{Binary: "sleep", Args: []string{"30"}}, nil, fastOpts())
	require.NoError(t, s.Start())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	res := s.Watch(ctx, &fakeIdle{})
	s.CloseOutputs()
	assert.Equal(t, StateKilled, res.State)
}

func TestSupervisor_RegistryKillReportsKilled(t *testing.T) {
	requireUnix(t)
	reg := NewRegistry()
	l, err := reg.Acquire("op")
	require.NoError(t, err)
	defer l.Release()

	s := NewSupervisor(Spec{Binary: "sleep", Args: []string{"30"}}, l, fastOpts())
	require.NoError(t, s.Start())
	time.AfterFunc(50*time.Millisecond, func() { _ = reg.Kill() })
	res := s.Watch(context.Background(), &fakeIdle{})
	s.CloseOutputs()
	assert.Equal(t, StateKilled, res.State)
}

func TestSupervisor_SpawnFailure(t *testing.T) {
	s := NewSupervisor(Spec{Binary: "/definitely/not/a/binary"}, nil, fastOpts())
	require.Error(t, s.Start())
	assert.Equal(t, StateSpawning, s.State())
	assert.Zero(t, s.PID())

	s = NewSupervisor(Spec{}, nil, fastOpts())
	assert.ErrorIs(t, s.Start(), ErrNoBinary)
}

func TestSupervisor_CloseOutputsUnblocksOrphanedPipe(t *testing.T) {
	requireUnix(t)
	// the grandchild keeps stdout open after the shell exits
	s := NewSupervisor(Spec{Binary: "/bin/sh", Args: []string{"-c", "sleep 30 & echo started"}}, nil, fastOpts())
	require.NoError(t, s.Start())

	done := make(chan struct{})
	go func() { _, _ = io.ReadAll(s.Stdout()); close(done) }()
	res := s.Watch(context.Background(), &fakeIdle{})
	assert.Equal(t, StateCompleted, res.State)

	select {
	case <-done:
		t.Fatal("reader finished while grandchild still holds the pipe")
	case <-time.After(100 * time.Millisecond):
	}
	s.CloseOutputs()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CloseOutputs did not unblock the reader")
	}
	_ = killProcess(res.PID)
}
