package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultSession = "work"
	cfg.Gateway.BaseURL = "https://chat.example.com/api"
	cfg.Poll.ActiveInterval = Duration{2 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Gateway.BaseURL != cfg.Gateway.BaseURL {
		t.Errorf("BaseURL = %q", loaded.Gateway.BaseURL)
	}
	if loaded.Poll.ActiveInterval.Duration != 2*time.Second {
		t.Errorf("ActiveInterval = %v, want 2s", loaded.Poll.ActiveInterval)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[gateway]
base_url = "http://localhost:3000/api/chat"
member_id = "u-1"

[poll]
background_interval = "1m"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Poll.Enabled {
		t.Error("poll.enabled should default to true")
	}
	if cfg.Poll.ActiveInterval.Duration != 5*time.Second {
		t.Errorf("active_interval = %v, want 5s", cfg.Poll.ActiveInterval)
	}
	if cfg.Poll.BackgroundInterval.Duration != time.Minute {
		t.Errorf("background_interval = %v, want 1m", cfg.Poll.BackgroundInterval)
	}
	if cfg.Chat.DefaultChannel != "general" || cfg.Chat.HistoryLimit != 50 {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[gateway]\ntimeout = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for bad duration")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Gateway.Timeout.Duration != 15*time.Second {
		t.Errorf("timeout = %v", cfg.Gateway.Timeout)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestEnvOverlay(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "ADMIRAL_MEMBER_ID=u-env\nADMIRAL_MEMBER_NAME=Env User\n"
	if err := os.WriteFile(envFile, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvGatewayURL, "http://gw.local")
	t.Setenv(EnvMemberID, "")
	t.Setenv(EnvMemberName, "")
	os.Unsetenv(EnvMemberID)
	os.Unsetenv(EnvMemberName)

	if err := LoadEnvFiles(envFile, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	cfg.Gateway.BaseURL = "http://from-file"
	cfg.ApplyEnv()

	if cfg.Gateway.BaseURL != "http://gw.local" {
		t.Errorf("BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.MemberID != "u-env" || cfg.Gateway.MemberName != "Env User" {
		t.Errorf("member = %q %q", cfg.Gateway.MemberID, cfg.Gateway.MemberName)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"ok", func(c *Config) {}, false},
		{"no base url", func(c *Config) { c.Gateway.BaseURL = "" }, true},
		{"relative url", func(c *Config) { c.Gateway.BaseURL = "/api/chat" }, true},
		{"no member", func(c *Config) { c.Gateway.MemberID = "" }, true},
		{"negative history", func(c *Config) { c.Chat.HistoryLimit = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Gateway.BaseURL = "https://chat.example.com"
			cfg.Gateway.MemberID = "u-1"
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
