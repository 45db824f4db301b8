package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/procstream/internal/event"
	"github.com/loykin/procstream/internal/executor"
	"github.com/loykin/procstream/internal/process"
	"github.com/loykin/procstream/internal/server"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix sh")
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := buildRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "procstream.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func shConfig(t *testing.T) string {
	return writeConfig(t, `
[tool]
name = "sh"
binary = "/bin/sh"
work_dir = "`+t.TempDir()+`"

[engine]
inactivity_timeout = "2s"
poll_interval = "20ms"
drain_timeout = "1s"
`)
}

func TestHelpMentionsCommands(t *testing.T) {
	out, _, err := execute(t, "--help")
	require.NoError(t, err)
	for _, c := range []string{"run", "serve", "cancel", "status", "last-command", "version"} {
		assert.Contains(t, out, c)
	}
}

func TestRunLocal_PrintsLines(t *testing.T) {
	requireUnix(t)
	out, _, err := execute(t, "run", "--config", shConfig(t), "--op-id", "cli-1", "--",
		"-c", `printf 'step 1\rstep 1\rstep 2\n'`)
	require.NoError(t, err)
	assert.Equal(t, "step 1\nstep 2\n", out)
}

func TestRunLocal_PrintsEveryLineOfABurst(t *testing.T) {
	requireUnix(t)
	out, _, err := execute(t, "run", "--config", shConfig(t), "--", "-c", "seq 1 3000")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3000)
	assert.Equal(t, "1", lines[0])
	assert.Equal(t, "3000", lines[2999])
}

func TestRunLocal_FailureReturnsError(t *testing.T) {
	requireUnix(t)
	_, errOut, err := execute(t, "run", "--config", shConfig(t), "--", "-c", "echo broken >&2; exit 4")
	require.Error(t, err)
	assert.Contains(t, errOut, "broken")
}

func TestRunLocal_JSONAndBinaryOverride(t *testing.T) {
	requireUnix(t)
	cfg := writeConfig(t, "[tool]\nname = \"whatever\"\nbinary = \"/definitely/missing\"\n")
	out, _, err := execute(t, "run", "--config", cfg, "--binary", "/bin/sh", "--json", "--op-id", "j1", "--", "-c", "echo hi")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"topic":"operation:output"`)
	assert.Contains(t, lines[0], `"line":"hi"`)
	assert.Contains(t, lines[1], `"topic":"operation:complete"`)
	assert.Contains(t, lines[1], `"success":true`)
}

func TestServe_RequiresConfigAndServer(t *testing.T) {
	_, _, err := execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file required")

	_, _, err = execute(t, "serve", shConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[server].listen")
}

func startDaemon(t *testing.T) (string, *executor.Executor) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := event.NewBus(0)
	exec := executor.New(bus,
		executor.WithRegistry(process.NewRegistry()),
		executor.WithInactivityTimeout(5*time.Second),
		executor.WithPollInterval(20*time.Millisecond),
	)
	ts := httptest.NewServer(server.NewRouter(exec, bus, server.Tool{Binary: "/bin/sh"}, "/api").Handler())
	t.Cleanup(func() {
		_ = exec.Cancel()
		ts.Close()
	})
	return ts.URL + "/api", exec
}

func TestRemoteCommands(t *testing.T) {
	requireUnix(t)
	api, exec := startDaemon(t)

	out, _, err := execute(t, "status", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, `"busy": false`)

	out, _, err = execute(t, "cancel", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, "cancel requested")

	out, _, err = execute(t, "run", "--api-url", api, "--op-id", "remote-1", "--", "-c", "echo remote; echo warn >&2")
	require.NoError(t, err)
	assert.Contains(t, out, "remote")

	require.Eventually(t, func() bool {
		_, busy := exec.Registry().Current()
		return !busy
	}, 5*time.Second, 10*time.Millisecond)

	out, _, err = execute(t, "last-command", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, `"operation_id": "remote-1"`)

	_, _, err = execute(t, "run", "--api-url", api, "--", "-c", "exit 2")
	assert.Error(t, err)
}

func TestRemoteCommands_RequireURL(t *testing.T) {
	_, _, err := execute(t, "status")
	assert.Error(t, err)
}

func TestPidFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "procstream.pid")
	require.NoError(t, writePidFile(pidFile, os.Getpid()))
	b, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	assert.NotEmpty(t, string(b))
	require.NoError(t, removePidFile(pidFile))
	assert.NoFileExists(t, pidFile)
	assert.NoError(t, removePidFile(""))
}
