package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sessions.RootDir == "" {
		t.Error("default sessions root dir is empty")
	}
	if !cfg.Sessions.Headless {
		t.Error("default headless = false, want true")
	}
	if cfg.Timing.ReconnectTimeout != 10*time.Second {
		t.Errorf("default reconnect timeout = %v, want 10s", cfg.Timing.ReconnectTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  auth_token: secret
sessions:
  root_dir: /var/lib/wagate/tokens
timing:
  lock_retry_delay: 2s
  reconnect_timeout: 30s
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "secret" {
		t.Errorf("auth token = %q, want secret", cfg.Server.AuthToken)
	}
	if cfg.Sessions.RootDir != "/var/lib/wagate/tokens" {
		t.Errorf("root dir = %q", cfg.Sessions.RootDir)
	}
	if cfg.Timing.LockRetryDelay != 2*time.Second {
		t.Errorf("lock retry delay = %v, want 2s", cfg.Timing.LockRetryDelay)
	}
	if cfg.Timing.ReconnectTimeout != 30*time.Second {
		t.Errorf("reconnect timeout = %v, want 30s", cfg.Timing.ReconnectTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.Timing.LockRetryDelay == 0 || cfg.Timing.CompletionGrace != 500*time.Millisecond {
		t.Errorf("completion grace = %v, want default 500ms", cfg.Timing.CompletionGrace)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of absent file did not error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Error("Load of invalid yaml did not error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"huge port", func(c *Config) { c.Server.Port = 70000 }},
		{"empty root dir", func(c *Config) { c.Sessions.RootDir = "" }},
		{"negative delay", func(c *Config) { c.Timing.LockRetryDelay = -time.Second }},
		{"zero send buffer", func(c *Config) { c.WS.SendBuffer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}
