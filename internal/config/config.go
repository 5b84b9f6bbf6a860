package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/auditwatch/auditwatch/internal/channel"
	"github.com/auditwatch/auditwatch/internal/logging"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "AUDITWATCH"

// Config represents the application configuration
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Channel ChannelConfig `yaml:"channel"`
	UI      UIConfig      `yaml:"ui"`
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig locates the audit backend
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// WSBase is the websocket origin; when empty it is derived from BaseURL
	WSBase    string        `yaml:"ws_base,omitempty"`
	WSPath    string        `yaml:"ws_path"`
	Username  string        `yaml:"username,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
	RetryMax  int           `yaml:"retry_max"`
	RateLimit float64       `yaml:"rate_limit_rps"`
}

// ChannelConfig holds live channel settings
type ChannelConfig struct {
	AutoReconnect  bool          `yaml:"auto_reconnect"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReadLimit      int64         `yaml:"read_limit,omitempty"`
}

// UIConfig holds UI-related settings
type UIConfig struct {
	Theme        string `yaml:"theme"`
	RefreshMs    int    `yaml:"refresh_ms"`
	LogTailLines int    `yaml:"log_tail_lines"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	// File receives logs from interactive commands; empty means auditwatch.log
	// in the config directory.
	File string `yaml:"file,omitempty"`
}

// overrides are read from AUDITWATCH_* variables. Unset variables leave the
// pointers nil so the file value survives.
type overrides struct {
	WSBase         *string        `envconfig:"WS_BASE"`
	BackendURL     *string        `envconfig:"BACKEND_URL"`
	Username       *string        `envconfig:"USERNAME"`
	Password       *string        `envconfig:"PASSWORD"`
	LogLevel       *string        `envconfig:"LOG_LEVEL"`
	ReconnectDelay *time.Duration `envconfig:"RECONNECT_DELAY"`
	AutoReconnect  *bool          `envconfig:"AUTO_RECONNECT"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:9999",
			WSPath:  channel.DefaultPath,
			Timeout: 30 * time.Second,
		},
		Channel: ChannelConfig{
			AutoReconnect:  true,
			ReconnectDelay: channel.DefaultReconnectDelay,
		},
		UI: UIConfig{
			Theme:        "auto",
			RefreshMs:    5000,
			LogTailLines: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	// Check XDG_CONFIG_HOME first
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "auditwatch"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Load loads the configuration from the default path
// Returns the config, whether this is a first run (no config exists), and any error
func Load() (*Config, bool, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, false, err
	}
	return LoadFile(path)
}

// LoadFile loads the configuration from path, then applies environment
// overrides and validates the result
func LoadFile(path string) (*Config, bool, error) {
	cfg := DefaultConfig()
	firstRun := false

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run - keep defaults
		firstRun = true
	case err != nil:
		return nil, false, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, false, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, firstRun, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, firstRun, err
	}
	return cfg, firstRun, nil
}

func (c *Config) applyEnv() error {
	var o overrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	if o.WSBase != nil {
		c.Backend.WSBase = *o.WSBase
	}
	if o.BackendURL != nil {
		c.Backend.BaseURL = *o.BackendURL
	}
	if o.Username != nil {
		c.Backend.Username = *o.Username
	}
	if o.Password != nil {
		c.Backend.Password = *o.Password
	}
	if o.LogLevel != nil {
		c.Logging.Level = *o.LogLevel
	}
	if o.ReconnectDelay != nil {
		c.Channel.ReconnectDelay = *o.ReconnectDelay
	}
	if o.AutoReconnect != nil {
		c.Channel.AutoReconnect = *o.AutoReconnect
	}
	return nil
}

// Validate rejects settings no component could work with. A missing
// websocket address is not an error here; the channel reports it when it
// tries to connect.
func (c *Config) Validate() error {
	if c.Channel.ReconnectDelay <= 0 {
		return fmt.Errorf("channel.reconnect_delay must be positive, got %s", c.Channel.ReconnectDelay)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.Backend.RetryMax < 0 {
		return fmt.Errorf("backend.retry_max must not be negative")
	}
	for name, raw := range map[string]string{
		"backend.base_url": c.Backend.BaseURL,
		"backend.ws_base":  c.Backend.WSBase,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid URL %q", name, raw)
		}
	}
	return nil
}

// WebsocketBase returns the websocket origin for the live channel
func (c *Config) WebsocketBase() string {
	if c.Backend.WSBase != "" {
		return c.Backend.WSBase
	}
	return channel.WebsocketBase(c.Backend.BaseURL)
}

// LogConfig builds the logger configuration. Interactive commands log to a
// file because the terminal belongs to the UI.
func (c *Config) LogConfig(interactive bool) (logging.Config, error) {
	lc := logging.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		OutputPaths: []string{"stderr"},
	}
	if !interactive {
		return lc, nil
	}
	file := c.Logging.File
	if file == "" {
		dir, err := ConfigDir()
		if err != nil {
			return lc, err
		}
		file = filepath.Join(dir, "auditwatch.log")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return lc, fmt.Errorf("create log directory: %w", err)
	}
	lc.OutputPaths = []string{file}
	return lc, nil
}

// RefreshInterval is the REST polling period of the dashboard
func (c *Config) RefreshInterval() time.Duration {
	if c.UI.RefreshMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.UI.RefreshMs) * time.Millisecond
}

// Save writes the configuration to the default path
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes the configuration to path
func SaveFile(path string, cfg *Config) error {
	// Create config directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Write atomically: write to temp file, then rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}
