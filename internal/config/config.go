package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override values from config.toml.
const (
	EnvGatewayURL  = "ADMIRAL_GATEWAY_URL"
	EnvMemberID    = "ADMIRAL_MEMBER_ID"
	EnvMemberName  = "ADMIRAL_MEMBER_NAME"
	EnvMetricsAddr = "ADMIRAL_METRICS_ADDR"
)

// Duration is a time.Duration written as a string ("5s", "1m") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.admiral/config.toml.
type Config struct {
	DefaultSession string        `toml:"default_session"`
	Gateway        GatewayConfig `toml:"gateway"`
	Poll           PollConfig    `toml:"poll"`
	Chat           ChatConfig    `toml:"chat"`
	Daemon         DaemonConfig  `toml:"daemon"`
}

// GatewayConfig locates the chat server and the member the daemon acts as.
type GatewayConfig struct {
	BaseURL    string   `toml:"base_url"`
	MemberID   string   `toml:"member_id"`
	MemberName string   `toml:"member_name"`
	Timeout    Duration `toml:"timeout"`
}

type PollConfig struct {
	Enabled            bool     `toml:"enabled"`
	ActiveInterval     Duration `toml:"active_interval"`
	BackgroundInterval Duration `toml:"background_interval"`
}

type ChatConfig struct {
	DefaultChannel string `toml:"default_channel"`
	HistoryLimit   int    `toml:"history_limit"`
}

type DaemonConfig struct {
	// MetricsAddr enables the /healthz and /metrics listener when set.
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{Timeout: Duration{15 * time.Second}},
		Poll: PollConfig{
			Enabled:            true,
			ActiveInterval:     Duration{5 * time.Second},
			BackgroundInterval: Duration{30 * time.Second},
		},
		Chat: ChatConfig{
			DefaultChannel: "general",
			HistoryLimit:   50,
		},
		Daemon: DaemonConfig{LogLevel: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns error if
// the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadEnvFiles loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides gateway and daemon settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvGatewayURL); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv(EnvMemberID); v != "" {
		c.Gateway.MemberID = v
	}
	if v := os.Getenv(EnvMemberName); v != "" {
		c.Gateway.MemberName = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Daemon.MetricsAddr = v
	}
}

// Validate checks the settings the daemon cannot start without.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required (or set %s)", EnvGatewayURL)
	}
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("gateway.base_url %q is not an absolute URL", c.Gateway.BaseURL)
	}
	if c.Gateway.MemberID == "" {
		return fmt.Errorf("gateway.member_id is required (or set %s)", EnvMemberID)
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat.history_limit must not be negative")
	}
	return nil
}
