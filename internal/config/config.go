package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Detection DetectionConfig `yaml:"detection"`
	Stream    StreamConfig    `yaml:"stream"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains SQLite configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains password and token configuration.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// DetectionConfig contains the external inference service configuration.
type DetectionConfig struct {
	ServiceURL string        `yaml:"service_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Models     []string      `yaml:"models"` // model names offered in the panel
}

// StreamConfig contains stream session tuning.
type StreamConfig struct {
	ReadBackoff time.Duration `yaml:"read_backoff"` // delay after a failed acquisition cycle
	MaxFailures int           `yaml:"max_failures"` // consecutive failures before the session fails
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. A missing path yields the
// built-in defaults so the binary can run without a config file.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	}

	cfg.setDefaults()
	return &cfg, nil
}

// getDefaultConfigPath returns the first config file found in common locations.
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.yaml",
		"/etc/visionpanel/config.yaml",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return paths[0]
}

// setDefaults sets default values for configuration.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Database.Path == "" {
		c.Database.Path = filepath.Join("data", "visionpanel.db")
	}

	if c.Auth.Secret == "" {
		c.Auth.Secret = os.Getenv("SECRET_KEY")
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 30 * time.Minute
	}

	if c.Detection.ServiceURL == "" {
		c.Detection.ServiceURL = "http://localhost:8500"
	}
	if c.Detection.Timeout == 0 {
		c.Detection.Timeout = 30 * time.Second
	}
	if len(c.Detection.Models) == 0 {
		c.Detection.Models = []string{"yolov8n", "yolov8s"}
	}

	if c.Stream.ReadBackoff == 0 {
		c.Stream.ReadBackoff = 500 * time.Millisecond
	}
	if c.Stream.MaxFailures == 0 {
		c.Stream.MaxFailures = 20
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}
