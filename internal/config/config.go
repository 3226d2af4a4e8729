package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stevedore-sh/stevedore/pkg/logger"
)

// ServiceConfig declares one tracked service.
type ServiceConfig struct {
	// Repository overrides the default <registry>/<name> image repository,
	// e.g. "hashicorp/vault" for an externally versioned service.
	Repository string `yaml:"repository,omitempty"`
	// DefaultTag is used the first time a version operation targets the
	// service. Defaults to "latest".
	DefaultTag string `yaml:"default_tag,omitempty"`
	// External marks services whose versioning is controlled upstream
	// (e.g. a vendor image on Docker Hub). resolve-tags skips them.
	External bool `yaml:"external,omitempty"`
	// ComposeName is the container/compose service name when it differs
	// from the logical name (e.g. "cmd-exec" for "cmd_exec").
	ComposeName string `yaml:"compose_name,omitempty"`
	Notes       string `yaml:"notes,omitempty"`
}

// Config is the stevedore.yaml configuration.
type Config struct {
	DeploymentID string                   `yaml:"deployment_id,omitempty"`
	Registry     string                   `yaml:"registry"`
	Manifest     string                   `yaml:"manifest,omitempty"`
	EnvFile      string                   `yaml:"env_file,omitempty"`
	EnvPrefix    string                   `yaml:"env_prefix,omitempty"`
	BackupDir    string                   `yaml:"backup_dir,omitempty"`
	HistoryLimit int                      `yaml:"history_limit,omitempty"`
	Workers      int                      `yaml:"workers,omitempty"`
	LogLevel     string                   `yaml:"log_level,omitempty"`
	Services     map[string]ServiceConfig `yaml:"services"`
}

const (
	defaultManifest  = "version-manifest.yaml"
	defaultEnvFile   = "versions.env"
	defaultEnvPrefix = "STACK"
	defaultBackupDir = ".version-backups"
	defaultWorkers   = 3
	maxWorkers       = 8
)

// Load reads the config file. When path is empty the standard locations are
// searched: ./stevedore.yaml, ~/.config/stevedore/stevedore.yaml,
// /etc/stevedore/stevedore.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := findConfig()
		if err != nil {
			return nil, err
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	logger.Debug("Config loaded", "path", path, "services", len(cfg.Services))
	return &cfg, nil
}

func findConfig() (string, error) {
	candidates := []string{"stevedore.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "stevedore", "stevedore.yaml"))
	}
	candidates = append(candidates, "/etc/stevedore/stevedore.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("config file not found - specify with --config or create ./stevedore.yaml")
}

func (c *Config) applyDefaults() {
	if c.Manifest == "" {
		c.Manifest = defaultManifest
	}
	if c.EnvFile == "" {
		c.EnvFile = defaultEnvFile
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = defaultEnvPrefix
	}
	if c.BackupDir == "" {
		c.BackupDir = defaultBackupDir
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Workers > maxWorkers {
		c.Workers = maxWorkers
	}
	for name, svc := range c.Services {
		if svc.DefaultTag == "" {
			svc.DefaultTag = "latest"
		}
		if svc.ComposeName == "" {
			svc.ComposeName = name
		}
		c.Services[name] = svc
	}
}

func (c *Config) applyEnvOverrides() {
	if val := os.Getenv("STEVEDORE_MANIFEST"); val != "" {
		c.Manifest = val
		logger.Info("Using environment variable STEVEDORE_MANIFEST", "value", val)
	}
	if val := os.Getenv("STEVEDORE_BACKUP_DIR"); val != "" {
		c.BackupDir = val
		logger.Info("Using environment variable STEVEDORE_BACKUP_DIR", "value", val)
	}
	if val := os.Getenv("STEVEDORE_ENV_FILE"); val != "" {
		c.EnvFile = val
		logger.Info("Using environment variable STEVEDORE_ENV_FILE", "value", val)
	}
	if val := os.Getenv("STEVEDORE_REGISTRY"); val != "" {
		c.Registry = val
		logger.Info("Using environment variable STEVEDORE_REGISTRY", "value", val)
	}
	if val := os.Getenv("STEVEDORE_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
}

func (c *Config) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services configured")
	}
	for name, svc := range c.Services {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("service with empty name")
		}
		if c.Registry == "" && svc.Repository == "" {
			return fmt.Errorf("service %q has no repository and no default registry is set", name)
		}
	}
	return nil
}

// Repository returns the full image repository (without tag) for a service.
func (c *Config) Repository(name string) (string, error) {
	svc, ok := c.Services[name]
	if !ok {
		return "", fmt.Errorf("unknown service: %s (available: %s)", name, strings.Join(c.ServiceNames(), ", "))
	}
	if svc.Repository != "" {
		return svc.Repository, nil
	}
	return c.Registry + "/" + name, nil
}

// ServiceNames returns the configured service names, sorted for stable
// output.
func (c *Config) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
