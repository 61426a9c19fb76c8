package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ocellus configuration.
type Config struct {
	// Companion API access
	Companion CompanionConfig `yaml:"companion"`

	// Filesystem layout shared by collaborators (cookies, fixtures, index)
	Paths PathsConfig `yaml:"paths"`

	// Mangle fact base
	Kernel KernelConfig `yaml:"kernel"`

	// Upload side-channel
	EDDN EDDNConfig `yaml:"eddn"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// CompanionConfig configures the upstream companion service.
type CompanionConfig struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	Cooldown  string `yaml:"cooldown"`
	UserAgent string `yaml:"user_agent"`
}

// PathsConfig configures where collaborators keep their files.
// Relative paths are resolved against Root.
type PathsConfig struct {
	Root        string `yaml:"root"`
	Database    string `yaml:"database"`
	SystemIndex string `yaml:"system_index"`
	Fixture     string `yaml:"fixture"`
	ProfileDump string `yaml:"profile_dump"`
}

// KernelConfig configures the fact base.
type KernelConfig struct {
	FactLimit    int    `yaml:"fact_limit"`
	QueryTimeout string `yaml:"query_timeout"`
}

// EDDNConfig configures the upload side-channel.
type EDDNConfig struct {
	Enabled         bool   `yaml:"enabled"`
	UploadURL       string `yaml:"upload_url"`
	SoftwareName    string `yaml:"software_name"`
	SoftwareVersion string `yaml:"software_version"`
	Timeout         string `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level    string   `yaml:"level"`  // debug, info, warn, error
	Format   string   `yaml:"format"` // json, text
	Disabled []string `yaml:"disabled"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Companion: CompanionConfig{
			BaseURL:   "https://companion.orerve.net",
			Timeout:   "30s",
			Cooldown:  "60s",
			UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 7_1_2 like Mac OS X) AppleWebKit/537.51.2 (KHTML, like Gecko) Mobile/11D257",
		},
		Paths: PathsConfig{
			Root:        defaultRoot(),
			Database:    "ocellus.db",
			SystemIndex: "systems.json",
			Fixture:     "debug_companion.json",
			ProfileDump: "companion.json",
		},
		Kernel: KernelConfig{
			FactLimit:    50000,
			QueryTimeout: "5s",
		},
		EDDN: EDDNConfig{
			Enabled:         false,
			UploadURL:       "https://eddn.edcd.io:4430/upload/",
			SoftwareName:    "ocellus",
			SoftwareVersion: "0.4.0",
			Timeout:         "20s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ocellus"
	}
	return filepath.Join(home, ".ocellus")
}

// DefaultConfigPath returns the config file location under the default root.
func DefaultConfigPath() string {
	return filepath.Join(defaultRoot(), "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if config file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Credentials live in this file.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OCELLUS_EMAIL"); v != "" {
		c.Companion.Email = v
	}
	if v := os.Getenv("OCELLUS_PASSWORD"); v != "" {
		c.Companion.Password = v
	}
	if v := os.Getenv("OCELLUS_BASE_URL"); v != "" {
		c.Companion.BaseURL = v
	}
	if v := os.Getenv("OCELLUS_ROOT"); v != "" {
		c.Paths.Root = v
	}
	if v := os.Getenv("OCELLUS_DB"); v != "" {
		c.Paths.Database = v
	}
	if v := os.Getenv("OCELLUS_FIXTURE"); v != "" {
		c.Paths.Fixture = v
	}
	if v := os.Getenv("OCELLUS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// HasCredentials reports whether both email and password are configured.
func (c *Config) HasCredentials() bool {
	return c.Companion.Email != "" && c.Companion.Password != ""
}

// LoginURL returns the login endpoint.
func (c *Config) LoginURL() string { return c.endpoint("/user/login") }

// ConfirmURL returns the verification endpoint.
func (c *Config) ConfirmURL() string { return c.endpoint("/user/confirm") }

// ProfileURL returns the profile endpoint.
func (c *Config) ProfileURL() string { return c.endpoint("/profile") }

func (c *Config) endpoint(path string) string {
	return strings.TrimRight(c.Companion.BaseURL, "/") + path
}

// ResolvePath joins a relative path with the configured root.
// Empty input stays empty.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.Root, p)
}

// GetTimeout returns the transport timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.Companion.Timeout, 30*time.Second)
}

// GetCooldown returns the profile cooldown window as a duration.
func (c *Config) GetCooldown() time.Duration {
	return parseDuration(c.Companion.Cooldown, 60*time.Second)
}

// GetQueryTimeout returns the fact base query timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	return parseDuration(c.Kernel.QueryTimeout, 5*time.Second)
}

// GetEDDNTimeout returns the upload timeout as a duration.
func (c *Config) GetEDDNTimeout() time.Duration {
	return parseDuration(c.EDDN.Timeout, 20*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate validates the configuration.
// Missing credentials are not an error: login reports them as NeedsCredentials.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Companion.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid companion base_url %q", c.Companion.BaseURL)
	}
	if c.GetCooldown() < 0 {
		return fmt.Errorf("companion cooldown must not be negative")
	}
	if c.Paths.Root == "" {
		return fmt.Errorf("paths.root must be set")
	}
	if c.EDDN.Enabled {
		if _, err := url.ParseRequestURI(c.EDDN.UploadURL); err != nil {
			return fmt.Errorf("invalid eddn upload_url %q: %w", c.EDDN.UploadURL, err)
		}
	}
	return nil
}
