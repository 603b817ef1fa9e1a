package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != "1.0" {
		t.Errorf("expected version 1.0, got %s", cfg.Version)
	}
	if cfg.Agent.Name != "claude" {
		t.Errorf("expected agent claude, got %s", cfg.Agent.Name)
	}
	if cfg.Agent.Sandbox != "none" {
		t.Errorf("expected sandbox none, got %s", cfg.Agent.Sandbox)
	}
	if cfg.Docker.Network != "none" {
		t.Errorf("expected network none, got %s", cfg.Docker.Network)
	}
	if cfg.Defaults.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Defaults.MaxRetries)
	}
	if cfg.Defaults.Timeout != 300 {
		t.Errorf("expected default timeout 300, got %d", cfg.Defaults.Timeout)
	}

	failure, cooldown, partial, err := cfg.Waits.Durations()
	if err != nil {
		t.Fatalf("Durations() error = %v", err)
	}
	if failure != 30*time.Second || cooldown != 60*time.Second || partial != 10*time.Second {
		t.Errorf("unexpected default waits: %s/%s/%s", failure, cooldown, partial)
	}
}

func TestWaitsDurations(t *testing.T) {
	tests := []struct {
		name    string
		waits   WaitsConfig
		wantErr bool
	}{
		{
			name:  "plain seconds",
			waits: WaitsConfig{Failure: "30s", Cooldown: "60s", Partial: "10s"},
		},
		{
			name:  "minutes",
			waits: WaitsConfig{Failure: "1m", Cooldown: "2m30s", Partial: "500ms"},
		},
		{
			name:    "bare number rejected",
			waits:   WaitsConfig{Failure: "30", Cooldown: "60s", Partial: "10s"},
			wantErr: true,
		},
		{
			name:    "empty rejected",
			waits:   WaitsConfig{Failure: "", Cooldown: "60s", Partial: "10s"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := tt.waits.Durations()
			if (err != nil) != tt.wantErr {
				t.Errorf("Durations() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid agent",
			modify:  func(c *Config) { c.Agent.Name = "gpt" },
			wantErr: true,
		},
		{
			name:   "sim agent valid",
			modify: func(c *Config) { c.Agent.Name = "sim" },
		},
		{
			name:    "invalid sandbox",
			modify:  func(c *Config) { c.Agent.Sandbox = "vm" },
			wantErr: true,
		},
		{
			name:   "docker sandbox valid",
			modify: func(c *Config) { c.Agent.Sandbox = "docker" },
		},
		{
			name:    "invalid network",
			modify:  func(c *Config) { c.Docker.Network = "overlay" },
			wantErr: true,
		},
		{
			name:    "unparsable wait",
			modify:  func(c *Config) { c.Waits.Cooldown = "soon" },
			wantErr: true,
		},
		{
			name:    "zero wait",
			modify:  func(c *Config) { c.Waits.Partial = "0s" },
			wantErr: true,
		},
		{
			name:    "negative default retries",
			modify:  func(c *Config) { c.Defaults.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "zero default timeout",
			modify:  func(c *Config) { c.Defaults.Timeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Name != "claude" {
		t.Errorf("expected default config, got agent %s", cfg.Agent.Name)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskloop.yaml")
	content := `
agent:
  name: sim
waits:
  failure: 5s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Name != "sim" {
		t.Errorf("expected agent sim, got %s", cfg.Agent.Name)
	}
	if cfg.Waits.Failure != "5s" {
		t.Errorf("expected failure wait 5s, got %s", cfg.Waits.Failure)
	}
	// Untouched keys keep their defaults.
	if cfg.Waits.Cooldown != "60s" {
		t.Errorf("expected default cooldown, got %s", cfg.Waits.Cooldown)
	}
	if cfg.Docker.Image != "alpine:3.20" {
		t.Errorf("expected default image, got %s", cfg.Docker.Image)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskloop.yaml")
	if err := os.WriteFile(path, []byte("agent: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskloop.yaml")

	cfg := DefaultConfig()
	cfg.Agent.Name = "sim"
	cfg.Store.Path = "custom/taskloop.db"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Agent.Name != "sim" || loaded.Store.Path != "custom/taskloop.db" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}
