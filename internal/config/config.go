// Package config handles taskloop configuration parsing and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the taskloop.yaml configuration file.
type Config struct {
	Version  string         `yaml:"version"`
	Agent    AgentConfig    `yaml:"agent"`
	Docker   DockerConfig   `yaml:"docker"`
	Waits    WaitsConfig    `yaml:"waits"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Store    StoreConfig    `yaml:"store"`
}

// AgentConfig specifies the agent backend and how task commands run.
type AgentConfig struct {
	Name    string `yaml:"name"`    // claude, sim
	Sandbox string `yaml:"sandbox"` // none, docker
}

// DockerConfig controls the docker sandbox when agent.sandbox is "docker".
type DockerConfig struct {
	Image     string          `yaml:"image"`
	Resources ResourcesConfig `yaml:"resources"`
	Network   string          `yaml:"network"` // none, bridge, host
}

// ResourcesConfig sets container resource limits.
type ResourcesConfig struct {
	Memory string `yaml:"memory"`
	CPUs   string `yaml:"cpus"`
}

// WaitsConfig sets the pauses between attempts, as duration strings
// ("30s", "1m").
type WaitsConfig struct {
	Failure  string `yaml:"failure"`
	Cooldown string `yaml:"cooldown"`
	Partial  string `yaml:"partial"`
}

// Durations parses the wait strings.
func (w WaitsConfig) Durations() (failure, cooldown, partial time.Duration, err error) {
	if failure, err = time.ParseDuration(w.Failure); err != nil {
		return 0, 0, 0, fmt.Errorf("parsing waits.failure: %w", err)
	}
	if cooldown, err = time.ParseDuration(w.Cooldown); err != nil {
		return 0, 0, 0, fmt.Errorf("parsing waits.cooldown: %w", err)
	}
	if partial, err = time.ParseDuration(w.Partial); err != nil {
		return 0, 0, 0, fmt.Errorf("parsing waits.partial: %w", err)
	}
	return failure, cooldown, partial, nil
}

// DefaultsConfig sets per-task defaults applied when a task omits them.
type DefaultsConfig struct {
	MaxRetries int `yaml:"max_retries"`
	Timeout    int `yaml:"timeout"`
}

// StoreConfig controls run history persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Agent: AgentConfig{
			Name:    "claude",
			Sandbox: "none",
		},
		Docker: DockerConfig{
			Image: "alpine:3.20",
			Resources: ResourcesConfig{
				Memory: "2g",
				CPUs:   "1",
			},
			Network: "none",
		},
		Waits: WaitsConfig{
			Failure:  "30s",
			Cooldown: "60s",
			Partial:  "10s",
		},
		Defaults: DefaultsConfig{
			MaxRetries: 3,
			Timeout:    300,
		},
		Store: StoreConfig{
			Path: ".taskloop/taskloop.db",
		},
	}
}

// Load reads and parses the taskloop.yaml config file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "taskloop.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validAgents := map[string]bool{"claude": true, "sim": true}
	if !validAgents[c.Agent.Name] {
		return fmt.Errorf("invalid agent: %s (must be claude or sim)", c.Agent.Name)
	}

	validSandboxes := map[string]bool{"none": true, "docker": true}
	if !validSandboxes[c.Agent.Sandbox] {
		return fmt.Errorf("invalid sandbox: %s (must be none or docker)", c.Agent.Sandbox)
	}

	validNetworks := map[string]bool{"none": true, "bridge": true, "host": true}
	if !validNetworks[c.Docker.Network] {
		return fmt.Errorf("invalid network: %s (must be none, bridge, or host)", c.Docker.Network)
	}

	failure, cooldown, partial, err := c.Waits.Durations()
	if err != nil {
		return err
	}
	if failure <= 0 || cooldown <= 0 || partial <= 0 {
		return fmt.Errorf("wait durations must be positive")
	}

	if c.Defaults.MaxRetries < 0 {
		return fmt.Errorf("default max_retries must be >= 0")
	}
	if c.Defaults.Timeout < 1 {
		return fmt.Errorf("default timeout must be at least 1 second")
	}

	return nil
}

// FindConfigFile searches for taskloop.yaml in current and parent directories.
func FindConfigFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for dir := cwd; ; dir = filepath.Dir(dir) {
		configPath := filepath.Join(dir, "taskloop.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		if dir == filepath.Dir(dir) {
			break
		}
	}

	return "", fmt.Errorf("taskloop.yaml not found in %s or parent directories", cwd)
}
