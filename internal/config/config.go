package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sessions SessionsConfig `yaml:"sessions"`
	Timing   TimingConfig   `yaml:"timing"`
	WS       WSConfig       `yaml:"ws"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SessionsConfig struct {
	// RootDir is the directory under which each session's persisted
	// browser profile lives, one subdirectory per session name.
	RootDir  string `yaml:"root_dir"`
	Headless bool   `yaml:"headless"`
}

// TimingConfig holds the operationally tuned delays used by the lifecycle
// manager, event relay and recovery supervisor. These are tunables, not
// contracts; the defaults match observed production values.
type TimingConfig struct {
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	LockRetryDelay      time.Duration `yaml:"lock_retry_delay"`
	CompletionGrace     time.Duration `yaml:"completion_grace"`
	FailureCleanupGrace time.Duration `yaml:"failure_cleanup_grace"`
	DeleteReleaseDelay  time.Duration `yaml:"delete_release_delay"`
	ReconnectTimeout    time.Duration `yaml:"reconnect_timeout"`
}

type WSConfig struct {
	SendBuffer int `yaml:"send_buffer"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration. Load layers the yaml file on
// top of it, so absent keys keep their defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Sessions: SessionsConfig{
			RootDir:  "./tokens",
			Headless: true,
		},
		Timing: TimingConfig{
			ProbeTimeout:        5 * time.Second,
			LockRetryDelay:      time.Second,
			CompletionGrace:     500 * time.Millisecond,
			FailureCleanupGrace: 2 * time.Second,
			DeleteReleaseDelay:  time.Second,
			ReconnectTimeout:    10 * time.Second,
		},
		WS: WSConfig{
			SendBuffer: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Sessions.RootDir == "" {
		return fmt.Errorf("sessions.root_dir must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"timing.probe_timeout":         c.Timing.ProbeTimeout,
		"timing.lock_retry_delay":      c.Timing.LockRetryDelay,
		"timing.completion_grace":      c.Timing.CompletionGrace,
		"timing.failure_cleanup_grace": c.Timing.FailureCleanupGrace,
		"timing.delete_release_delay":  c.Timing.DeleteReleaseDelay,
		"timing.reconnect_timeout":     c.Timing.ReconnectTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive")
	}
	return nil
}
