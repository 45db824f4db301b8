package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/procstream/internal/event"
	"github.com/loykin/procstream/internal/logger"
)

func TestSinkWritesPerOrigin(t *testing.T) {
	dir := t.TempDir()
	s, err := New(logger.FileConfig{Dir: dir}, "tool")
	require.NoError(t, err)

	s.PublishLine(event.NewLine("op-1", "flashing", event.Stdout))
	s.PublishLine(event.NewLine("op-1", "warning: slow usb", event.Stderr))
	s.PublishComplete(event.NewCompletion("op-1", false, "device lost"))
	require.NoError(t, s.Close())

	out, err := os.ReadFile(filepath.Join(dir, "tool.stdout.log"))
	require.NoError(t, err)
	errOut, err := os.ReadFile(filepath.Join(dir, "tool.stderr.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[op-1] flashing")
	assert.Contains(t, lines[1], "completed (failure: device lost)")
	assert.Contains(t, string(errOut), "[op-1] warning: slow usb")
	assert.NotContains(t, string(out), "slow usb")
}

func TestSinkStdoutOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "only.log")
	s, err := New(logger.FileConfig{StdoutPath: path}, "ignored")
	require.NoError(t, err)
	s.PublishLine(event.NewLine("op", "dropped", event.Stderr))
	s.PublishComplete(event.NewCompletion("op", true, ""))
	require.NoError(t, s.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "completed (success)")
	assert.NotContains(t, string(b), "dropped")
}

func TestNewRequiresDestination(t *testing.T) {
	_, err := New(logger.FileConfig{}, "tool")
	assert.Error(t, err)
}
