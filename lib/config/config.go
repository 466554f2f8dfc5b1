// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Store kinds accepted in server.store.kind.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Config is the master configuration for proxysync processes.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Session configures client sessions.
	Session SessionConfig `yaml:"session"`

	// Server configures the state server.
	Server ServerConfig `yaml:"server"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Server  *ServerConfig  `yaml:"server,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for proxysync data.
	Root string `yaml:"root"`

	// State is where the server keeps its persistent store.
	State string `yaml:"state"`
}

// SessionConfig configures client sessions.
type SessionConfig struct {
	// UserLabel is the name announced to collaborators.
	// Default: $USER
	UserLabel string `yaml:"user_label"`

	// UndoCapacity bounds the undo history.
	// Default: 10
	UndoCapacity int `yaml:"undo_capacity"`

	// MaxNameSuffix bounds the integer suffix searched by unique
	// proxy name generation.
	// Default: 1000000
	MaxNameSuffix int `yaml:"max_name_suffix"`

	// DocumentVersion is the major.minor.patch written into saved
	// state documents. Empty means the built-in version.
	DocumentVersion string `yaml:"document_version"`

	// IDChunk is how many global ids a session reserves from the
	// server at a time.
	// Default: 256
	IDChunk int `yaml:"id_chunk"`

	// CallTimeout bounds each round trip to the server.
	// Default: 30s
	CallTimeout string `yaml:"call_timeout"`
}

// ServerConfig configures the state server.
type ServerConfig struct {
	// Listen is the address of the WebSocket endpoint.
	// Default: 127.0.0.1:11111
	Listen string `yaml:"listen"`

	// MetricsListen is the address serving /metrics. Empty disables
	// the metrics endpoint.
	// Default: 127.0.0.1:11112
	MetricsListen string `yaml:"metrics_listen"`

	// Store selects the state store.
	Store StoreConfig `yaml:"store"`

	// CompressThreshold is the frame size in bytes above which frames
	// are LZ4-compressed. Zero compresses every frame.
	// Default: 4096
	CompressThreshold int `yaml:"compress_threshold"`

	// Log configures the server logger.
	Log LogConfig `yaml:"log"`
}

// StoreConfig selects and locates the state store.
type StoreConfig struct {
	// Kind is "memory" or "badger".
	// Default: memory (development), badger (production)
	Kind string `yaml:"kind"`

	// Path is the badger directory.
	// Default: ${PROXYSYNC_STATE}/badger
	Path string `yaml:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Format is "text" or "json".
	// Default: text
	Format string `yaml:"format"`

	// Level is debug, info, warn or error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "proxysync")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
		},
		Session: SessionConfig{
			UserLabel:     "${USER:-anonymous}",
			UndoCapacity:  10,
			MaxNameSuffix: 1_000_000,
			IDChunk:       256,
			CallTimeout:   "30s",
		},
		Server: ServerConfig{
			Listen:        "127.0.0.1:11111",
			MetricsListen: "127.0.0.1:11112",
			Store: StoreConfig{
				Kind: StoreMemory,
				Path: "${PROXYSYNC_STATE}/badger",
			},
			CompressThreshold: 4096,
			Log: LogConfig{
				Format: "text",
				Level:  "info",
			},
		},
	}
}

// Load loads configuration from PROXYSYNC_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if PROXYSYNC_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("PROXYSYNC_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PROXYSYNC_CONFIG environment variable not set; " +
			"set it to the path of your proxysync.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME} and similar
// variables in path and label fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.Resolve()

	return cfg, nil
}

// Resolve applies the environment-specific overrides and expands
// variables. LoadFile calls it; callers building a Config from
// [Default] without a file call it themselves.
func (c *Config) Resolve() {
	c.applyEnvironmentOverrides()
	c.expandVariables()
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: persistent store and JSON logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Server: &ServerConfig{
					Store: StoreConfig{Kind: StoreBadger},
					Log:   LogConfig{Format: "json"},
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
	}

	if overrides.Session != nil {
		if overrides.Session.UserLabel != "" {
			c.Session.UserLabel = overrides.Session.UserLabel
		}
		if overrides.Session.UndoCapacity != 0 {
			c.Session.UndoCapacity = overrides.Session.UndoCapacity
		}
		if overrides.Session.MaxNameSuffix != 0 {
			c.Session.MaxNameSuffix = overrides.Session.MaxNameSuffix
		}
		if overrides.Session.DocumentVersion != "" {
			c.Session.DocumentVersion = overrides.Session.DocumentVersion
		}
		if overrides.Session.IDChunk != 0 {
			c.Session.IDChunk = overrides.Session.IDChunk
		}
		if overrides.Session.CallTimeout != "" {
			c.Session.CallTimeout = overrides.Session.CallTimeout
		}
	}

	if overrides.Server != nil {
		if overrides.Server.Listen != "" {
			c.Server.Listen = overrides.Server.Listen
		}
		if overrides.Server.MetricsListen != "" {
			c.Server.MetricsListen = overrides.Server.MetricsListen
		}
		if overrides.Server.Store.Kind != "" {
			c.Server.Store.Kind = overrides.Server.Store.Kind
		}
		if overrides.Server.Store.Path != "" {
			c.Server.Store.Path = overrides.Server.Store.Path
		}
		if overrides.Server.CompressThreshold != 0 {
			c.Server.CompressThreshold = overrides.Server.CompressThreshold
		}
		if overrides.Server.Log.Format != "" {
			c.Server.Log.Format = overrides.Server.Log.Format
		}
		if overrides.Server.Log.Level != "" {
			c.Server.Log.Level = overrides.Server.Log.Level
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"PROXYSYNC_ROOT": c.Paths.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["PROXYSYNC_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["PROXYSYNC_STATE"] = c.Paths.State

	c.Server.Store.Path = expandVars(c.Server.Store.Path, vars)
	c.Session.UserLabel = expandVars(c.Session.UserLabel, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Session.UndoCapacity < 1 {
		errs = append(errs, fmt.Errorf("session.undo_capacity must be positive, got %d", c.Session.UndoCapacity))
	}
	if c.Session.MaxNameSuffix < 1 {
		errs = append(errs, fmt.Errorf("session.max_name_suffix must be positive, got %d", c.Session.MaxNameSuffix))
	}
	if c.Session.IDChunk < 1 {
		errs = append(errs, fmt.Errorf("session.id_chunk must be positive, got %d", c.Session.IDChunk))
	}

	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required"))
	}
	switch c.Server.Store.Kind {
	case StoreMemory:
	case StoreBadger:
		if c.Server.Store.Path == "" {
			errs = append(errs, fmt.Errorf("server.store.path is required for the badger store"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.store.kind must be %q or %q, got %q", StoreMemory, StoreBadger, c.Server.Store.Kind))
	}
	if c.Server.CompressThreshold < 0 {
		errs = append(errs, fmt.Errorf("server.compress_threshold must not be negative"))
	}
	if c.Server.Log.Format != "text" && c.Server.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("server.log.format must be text or json, got %q", c.Server.Log.Format))
	}
	if _, err := c.Server.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("server.log.level: %w", err)
	}
	return level, nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
	}
	if c.Server.Store.Kind == StoreBadger {
		paths = append(paths, c.Server.Store.Path)
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
