package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/procstream/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. PROCSTREAM_TOOL_BINARY.
const EnvPrefix = "PROCSTREAM"

// Config represents the top-level TOML structure.
type Config struct {
	Tool       ToolConfig       `toml:"tool" mapstructure:"tool"`
	Engine     EngineConfig     `toml:"engine" mapstructure:"engine"`
	Log        logger.Config    `toml:"log" mapstructure:"log"`
	Transcript TranscriptConfig `toml:"transcript" mapstructure:"transcript"`
	Server     *ServerConfig    `toml:"server" mapstructure:"server"`
	Metrics    MetricsConfig    `toml:"metrics" mapstructure:"metrics"`
	History    HistoryConfig    `toml:"history" mapstructure:"history"`

	// ConfigPath is the file the configuration was read from.
	ConfigPath string `toml:"-" mapstructure:"-"`
}

// ToolConfig names the external binary every operation invokes.
type ToolConfig struct {
	Name     string   `toml:"name" mapstructure:"name"`
	Binary   string   `toml:"binary" mapstructure:"binary"`
	AppDir   string   `toml:"app_dir" mapstructure:"app_dir"`
	WorkDir  string   `toml:"work_dir" mapstructure:"work_dir"`
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`
}

type EngineConfig struct {
	InactivityTimeout time.Duration `toml:"inactivity_timeout" mapstructure:"inactivity_timeout"`
	PollInterval      time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	DrainTimeout      time.Duration `toml:"drain_timeout" mapstructure:"drain_timeout"`
	SampleResources   bool          `toml:"sample_resources" mapstructure:"sample_resources"`
}

// TranscriptConfig enables rotating per-stream transcripts of tool output.
type TranscriptConfig struct {
	Enabled           bool `toml:"enabled" mapstructure:"enabled"`
	logger.FileConfig `mapstructure:",squash"`
}

type ServerConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig selects certificate files, a certificate directory, or a
// self-signed certificate generated into Dir.
type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig lists sink DSNs (sqlite://, postgres://, clickhouse://,
// opensearch://) receiving one record per finished operation.
type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	DSNs    []string `toml:"dsns" mapstructure:"dsns"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tool.name", "tool")
	v.SetDefault("engine.inactivity_timeout", "30s")
	v.SetDefault("engine.poll_interval", "1s")
	v.SetDefault("engine.drain_timeout", "5s")
	v.SetDefault("log.slog.level", string(logger.LevelInfo))
	v.SetDefault("log.slog.format", string(logger.FormatText))
	v.SetDefault("log.slog.color", true)
	v.SetDefault("log.slog.timestamps", true)
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("metrics.listen", ":9090")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadConfig reads path (TOML) and applies defaults and PROCSTREAM_*
// environment overrides. An empty path yields the defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	// AutomaticEnv only affects keys viper already knows about.
	for _, k := range []string{"tool.binary", "tool.app_dir", "tool.work_dir"} {
		_ = v.BindEnv(k)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigPath = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Tool.Name == "" {
		errs = append(errs, errors.New("tool.name is required"))
	}
	if c.Engine.InactivityTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.inactivity_timeout must be positive, got %s", c.Engine.InactivityTimeout))
	}
	if c.Engine.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("engine.poll_interval must be positive, got %s", c.Engine.PollInterval))
	}
	if c.Engine.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.drain_timeout must not be negative, got %s", c.Engine.DrainTimeout))
	}
	if c.History.Enabled && len(c.History.DSNs) == 0 {
		errs = append(errs, errors.New("history.enabled requires at least one dsn"))
	}
	if tls := c.tls(); tls != nil && tls.Enabled {
		if (tls.CertFile == "") != (tls.KeyFile == "") {
			errs = append(errs, errors.New("server.tls: cert_file and key_file must be set together"))
		}
		if tls.CertFile == "" && tls.Dir == "" {
			errs = append(errs, errors.New("server.tls: cert_file/key_file or dir is required"))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) tls() *TLSConfig {
	if c.Server == nil {
		return nil
	}
	return c.Server.TLS
}

// ResolveEnv merges env_files (in order) and then the env list into
// KEY=VALUE pairs, later entries overriding earlier ones.
func (t ToolConfig) ResolveEnv() ([]string, error) {
	m := make(map[string]string)
	for _, p := range t.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range pairs {
			m[k] = v
		}
	}
	for _, kv := range t.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return sortedPairs(m), nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	return sortedPairs(m), nil
}

// loadEnvFile parses KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}

func sortedPairs(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
