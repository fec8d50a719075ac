// Package models defines the core data structures for the PBS exporter
// application. It includes configuration models and API response structures
// that match the Proxmox Backup Server JSON API format.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// EnvTokenSecret is the environment variable that overrides the API token
// secret from the configuration file. Keeping the secret out of the config
// file is recommended for containerized deployments.
const EnvTokenSecret = "PBS_EXPORTER_TOKEN_SECRET"

// Default values applied by SetDefaults for optional configuration fields.
const (
	DefaultListenHost     = "0.0.0.0"
	DefaultListenPort     = "9101"
	DefaultMetricsURI     = "/metrics"
	DefaultTimeoutSeconds = 5
	DefaultTaskLimit      = 50
)

// Config represents the complete application configuration for the PBS
// exporter. It includes settings for the HTTP server, the PBS server, and
// optional OpenTelemetry tracing.
type Config struct {
	Server struct {
		Port    string `yaml:"port"`
		Host    string `yaml:"host"`
		URI     string `yaml:"uri"`
		LogName string `yaml:"logName"`
	} `yaml:"server"`

	PbsServer struct {
		// Endpoint is the PBS API base URL, e.g. "https://pbs.example.com:8007".
		Endpoint string `yaml:"endpoint"`
		// TokenID identifies the API token, e.g. "monitoring@pbs!exporter".
		TokenID string `yaml:"tokenId"`
		// TokenSecret is the API token secret. May also be supplied via the
		// PBS_EXPORTER_TOKEN_SECRET environment variable, which wins over
		// the file value.
		TokenSecret        string `yaml:"tokenSecret"`
		InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
		// TimeoutSeconds bounds every API request.
		TimeoutSeconds int `yaml:"timeoutSeconds"`
		// SnapshotHistoryLimit is the number of snapshots exposed per backup
		// group (0 = all, 1 = latest only, 2 = two latest, ...).
		SnapshotHistoryLimit int `yaml:"snapshotHistoryLimit"`
		// TaskLimit is the maximum number of tasks fetched per scrape.
		TaskLimit int `yaml:"taskLimit"`
	} `yaml:"pbsserver"`

	OpenTelemetry struct {
		Enabled      bool    `yaml:"enabled"`
		Endpoint     string  `yaml:"endpoint"`
		Insecure     bool    `yaml:"insecure"`
		SamplingRate float64 `yaml:"samplingRate"`
	} `yaml:"opentelemetry"`
}

// LoadConfig reads, decodes, and validates the YAML configuration file at
// the given path. It returns a ready-to-use configuration with defaults and
// environment overrides applied, or an error describing what is wrong with
// the file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SetDefaults sets default values for optional configuration fields and
// applies environment variable overrides. It is called automatically by
// Validate() before validation checks.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultListenHost
	}
	if c.Server.Port == "" {
		c.Server.Port = DefaultListenPort
	}
	if c.Server.URI == "" {
		c.Server.URI = DefaultMetricsURI
	}
	if c.PbsServer.TimeoutSeconds == 0 {
		c.PbsServer.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.PbsServer.TaskLimit == 0 {
		c.PbsServer.TaskLimit = DefaultTaskLimit
	}
	if c.OpenTelemetry.Enabled && c.OpenTelemetry.SamplingRate == 0 {
		c.OpenTelemetry.SamplingRate = 1.0
	}
	if secret := os.Getenv(EnvTokenSecret); secret != "" {
		c.PbsServer.TokenSecret = secret
	}
}

// Validate checks if the configuration is valid and returns an error if not.
// It performs validation of all configuration fields including:
//   - Server settings (host, port, URI)
//   - PBS server settings (endpoint URL, token credentials)
//   - Snapshot history limit and task limit (must not be negative)
//
// This method calls SetDefaults() before validation so optional fields have
// appropriate default values.
//
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	c.SetDefaults()

	if port, err := strconv.Atoi(c.Server.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}
	if c.Server.URI == "" || c.Server.URI[0] != '/' {
		return fmt.Errorf("invalid metrics URI: %q (must start with /)", c.Server.URI)
	}

	if c.PbsServer.Endpoint == "" {
		return errors.New("PBS endpoint is required")
	}
	u, err := url.Parse(c.PbsServer.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid PBS endpoint: %s", c.PbsServer.Endpoint)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid PBS endpoint scheme: %s (must be http or https)", u.Scheme)
	}
	if c.PbsServer.TokenID == "" || c.PbsServer.TokenSecret == "" {
		return errors.New("PBS API token credentials are required")
	}
	if c.PbsServer.TimeoutSeconds < 1 {
		return fmt.Errorf("invalid timeout: %d seconds", c.PbsServer.TimeoutSeconds)
	}
	if c.PbsServer.SnapshotHistoryLimit < 0 {
		return fmt.Errorf("invalid snapshot history limit: %d", c.PbsServer.SnapshotHistoryLimit)
	}
	if c.PbsServer.TaskLimit < 1 {
		return fmt.Errorf("invalid task limit: %d", c.PbsServer.TaskLimit)
	}

	return nil
}

// GetPbsBaseURL returns the PBS API base URL without a trailing slash.
//
// Example: "https://pbs.example.com:8007"
func (c *Config) GetPbsBaseURL() string {
	endpoint := c.PbsServer.Endpoint
	for len(endpoint) > 0 && endpoint[len(endpoint)-1] == '/' {
		endpoint = endpoint[:len(endpoint)-1]
	}
	return endpoint
}

// GetServerAddress returns the complete server address for HTTP server binding.
// Format: host:port
//
// Example: "0.0.0.0:9101"
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// GetTimeout returns the configured API request timeout as a time.Duration.
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.PbsServer.TimeoutSeconds) * time.Second
}

// IsOTelEnabled reports whether OpenTelemetry tracing is enabled.
func (c *Config) IsOTelEnabled() bool {
	return c.OpenTelemetry.Enabled
}

// MaskTokenSecret returns a masked version of the API token secret for safe
// logging. Shows the first 4 and last 4 characters with asterisks in between.
//
// Example: "abcd1234efgh5678" -> "abcd****5678"
//
// For secrets shorter than 8 characters, returns "****".
func (c *Config) MaskTokenSecret() string {
	if len(c.PbsServer.TokenSecret) <= 8 {
		return "****"
	}
	return c.PbsServer.TokenSecret[:4] + "****" + c.PbsServer.TokenSecret[len(c.PbsServer.TokenSecret)-4:]
}
