package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

const (
	backendSQLite = "sqlite"
	backendBolt   = "bbolt"
)

// ServerConfig holds the configuration for the HTTP server.
type ServerConfig struct {
	ApiAddr         string `json:"api_addr" yaml:"api_addr"`
	LogLevel        string `json:"log_level" yaml:"log_level"`
	ShutdownTimeout int    `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
	MaxBodyBytes    int64  `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// StoreConfig selects and locates the model store.
type StoreConfig struct {
	Backend    string `json:"backend" yaml:"backend"` // "sqlite" or "bbolt"
	DataDir    string `json:"data_dir" yaml:"data_dir"`
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
	BoltPath   string `json:"bolt_path" yaml:"bolt_path"`
}

// GenerateConfig holds the defaults and limits for sentence generation.
type GenerateConfig struct {
	MaxCount    int     `json:"max_count" yaml:"max_count"`
	MaxLength   int     `json:"max_length" yaml:"max_length"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopK        int     `json:"top_k" yaml:"top_k"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server   *ServerConfig   `json:"server_config" yaml:"server_config"`
	Store    *StoreConfig    `json:"store_config" yaml:"store_config"`
	Generate *GenerateConfig `json:"generate_config" yaml:"generate_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:         ":7280",
		LogLevel:        "info",
		ShutdownTimeout: 10,
		MaxBodyBytes:    8 << 20,
	}
}

// DefaultStoreConfig creates a store configuration with default values.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:    backendSQLite,
		DataDir:    "./data",
		SQLitePath: "./data/babbler.db?_journal_mode=WAL&_busy_timeout=5000",
		BoltPath:   "./data/babbler.bolt",
	}
}

// DefaultGenerateConfig creates a generation configuration with default values.
func DefaultGenerateConfig() *GenerateConfig {
	return &GenerateConfig{
		MaxCount:    50,
		MaxLength:   100,
		Temperature: 1.0,
		TopK:        0,
	}
}

// DefaultConfig returns a full configuration with every section set to its defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Store:    DefaultStoreConfig(),
		Generate: DefaultGenerateConfig(),
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

// LoadConfig reads the configuration from the file at the given path. Files
// ending in .yaml or .yml are parsed as YAML, everything else as JSON.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The binary can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(file, config)
	} else {
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Sections left out of the file keep their defaults.
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Store == nil {
		config.Store = DefaultStoreConfig()
	}
	if config.Generate == nil {
		config.Generate = DefaultGenerateConfig()
	}

	if err = config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case backendSQLite, backendBolt:
	default:
		return fmt.Errorf("unknown store backend %q (want %q or %q)", c.Store.Backend, backendSQLite, backendBolt)
	}
	if c.Generate.MaxCount <= 0 {
		return fmt.Errorf("generate max_count must be positive, got %d", c.Generate.MaxCount)
	}
	if c.Generate.MaxLength < 0 {
		return fmt.Errorf("generate max_length must not be negative, got %d", c.Generate.MaxLength)
	}
	return nil
}

// parseLogLevel maps the configured level name to a slog level, falling back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(config *ServerConfig) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(config.LogLevel)}))
}
