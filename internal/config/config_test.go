package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/procstream/internal/logger"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "procstream.toml")
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "[tool]\nname = \"flasher\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "flasher", cfg.Tool.Name)
	assert.Equal(t, 30*time.Second, cfg.Engine.InactivityTimeout)
	assert.Equal(t, time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Engine.DrainTimeout)
	assert.Equal(t, logger.LevelInfo, cfg.Log.Slog.Level)
	assert.Equal(t, logger.DefaultMaxSizeMB, cfg.Log.File.MaxSizeMB)
	assert.Nil(t, cfg.Server)
	assert.False(t, cfg.History.Enabled)
}

func TestLoadConfig_Full(t *testing.T) {
	data := `
[tool]
name = "flasher"
binary = "/opt/flasher/bin/flasher"
app_dir = "/var/lib/flasher"
env = ["A=1"]

[engine]
inactivity_timeout = "45s"
poll_interval = "250ms"
drain_timeout = "2s"
sample_resources = true

[log.slog]
level = "debug"
format = "json"

[transcript]
enabled = true
dir = "/var/log/flasher"
max_backups = 9

[server]
listen = ":8443"
base_path = "/api"
tls_min_version = "1.2"

[server.tls]
enabled = true
dir = "/etc/flasher/tls"
auto_generate = true

[server.tls.auto_gen]
common_name = "flasher.local"
dns_names = ["flasher.local"]
valid_days = 30

[metrics]
enabled = true
listen = ":9100"

[history]
enabled = true
dsns = ["sqlite:///tmp/history.db", "opensearch://localhost:9200/ops"]
`
	cfg, err := LoadConfig(writeConfig(t, data))
	require.NoError(t, err)

	assert.Equal(t, "/opt/flasher/bin/flasher", cfg.Tool.Binary)
	assert.Equal(t, "/var/lib/flasher", cfg.Tool.AppDir)
	assert.Equal(t, 45*time.Second, cfg.Engine.InactivityTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.PollInterval)
	assert.True(t, cfg.Engine.SampleResources)
	assert.Equal(t, logger.FormatJSON, cfg.Log.Slog.Format)
	assert.True(t, cfg.Transcript.Enabled)
	assert.Equal(t, "/var/log/flasher", cfg.Transcript.Dir)
	assert.Equal(t, 9, cfg.Transcript.MaxBackups)

	require.NotNil(t, cfg.Server)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "1.2", cfg.Server.TLSMinVersion)
	require.NotNil(t, cfg.Server.TLS)
	assert.True(t, cfg.Server.TLS.AutoGenerate)
	require.NotNil(t, cfg.Server.TLS.AutoGen)
	assert.Equal(t, "flasher.local", cfg.Server.TLS.AutoGen.CommonName)
	assert.Equal(t, 30, cfg.Server.TLS.AutoGen.ValidDays)

	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.Len(t, cfg.History.DSNs, 2)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("PROCSTREAM_TOOL_BINARY", "/usr/local/bin/override")
	t.Setenv("PROCSTREAM_ENGINE_INACTIVITY_TIMEOUT", "1m")

	cfg, err := LoadConfig(writeConfig(t, "[tool]\nname = \"flasher\"\nbinary = \"/from/file\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/override", cfg.Tool.Binary)
	assert.Equal(t, time.Minute, cfg.Engine.InactivityTimeout)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "tool", cfg.Tool.Name)
	assert.Empty(t, cfg.ConfigPath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"negative timeout": "[engine]\ninactivity_timeout = \"-1s\"\n",
		"zero poll":        "[engine]\npoll_interval = \"0s\"\n",
		"history no dsn":   "[history]\nenabled = true\n",
		"tls half pair":    "[server]\nlisten = \":1\"\n[server.tls]\nenabled = true\ncert_file = \"/c\"\n",
		"tls no source":    "[server]\nlisten = \":1\"\n[server.tls]\nenabled = true\n",
		"bad duration":     "[engine]\ndrain_timeout = \"soon\"\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
