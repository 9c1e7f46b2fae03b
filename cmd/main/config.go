package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/Trellis/pkg/preview"
	"github.com/CTAG07/Trellis/pkg/templating"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP server and storage paths.
type ServerConfig struct {
	ApiAddr            string `json:"api_addr"`
	LogLevel           string `json:"log_level"`
	DataDir            string `json:"data_dir"`
	DatabasePath       string `json:"database_path"`
	LibraryPath        string `json:"library_path"`
	ShutdownTimeoutSec int    `json:"shutdown_timeout_sec"`
	// WatchLibrary reloads sections, presets and partials when files change.
	WatchLibrary       bool   `json:"watch_library"`
}

// CacheConfig holds settings for the preview cache.
type CacheConfig struct {
	// Backend is "sqlite" or "memory".
	Backend          string `json:"backend"`
	OverrideTTLSec   int    `json:"override_ttl_sec"`
	DefaultTTLSec    int    `json:"default_ttl_sec"`
	SweepIntervalSec int    `json:"sweep_interval_sec"`
}

// TelemetryConfig holds settings for tracing and render metrics.
type TelemetryConfig struct {
	ServiceName string `json:"service_name"`
	// LogSpans writes every finished span to the logger at debug level.
	LogSpans bool `json:"log_spans"`
	// LogRenders writes one log line per section render.
	LogRenders bool `json:"log_renders"`
	// RecordStats persists per-section render statistics.
	RecordStats bool `json:"record_stats"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server    *ServerConfig              `json:"server_config"`
	Templates *templating.TemplateConfig `json:"template_config"`
	Cache     *CacheConfig               `json:"cache_config"`
	Telemetry *TelemetryConfig           `json:"telemetry_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:            ":7380",
		LogLevel:           "info",
		DataDir:            "./data",
		DatabasePath:       "./data/trellis.db?_journal_mode=WAL&_busy_timeout=5000",
		LibraryPath:        "./data/library",
		ShutdownTimeoutSec: 10,
		WatchLibrary:       true,
	}
}

// DefaultCacheConfig mirrors preview.DefaultTTLPolicy.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Backend:          "sqlite",
		OverrideTTLSec:   int(preview.DefaultOverrideTTL / time.Second),
		DefaultTTLSec:    int(preview.DefaultBaseTTL / time.Second),
		SweepIntervalSec: 600,
	}
}

func DefaultTelemetryConfig() *TelemetryConfig {
	return &TelemetryConfig{
		ServiceName: "trellis",
		LogSpans:    false,
		LogRenders:  true,
		RecordStats: true,
	}
}

// DefaultConfig returns the configuration written on first start.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Templates: templating.DefaultConfig(),
		Cache:     DefaultCacheConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// TTLPolicy converts the configured lifetimes. Non-positive values fall back
// to the package defaults.
func (c *CacheConfig) TTLPolicy() preview.TTLPolicy {
	return preview.TTLPolicy{
		Override: time.Duration(c.OverrideTTLSec) * time.Second,
		Default:  time.Duration(c.DefaultTTLSec) * time.Second,
	}
}

// LogLevel parses a level name, defaulting to info.
func LogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values. Sections
// missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.fillDefaults()
	return config, nil
}

// fillDefaults replaces sections that were explicitly null in the file.
func (c *Config) fillDefaults() {
	if c.Server == nil {
		c.Server = DefaultServerConfig()
	}
	if c.Templates == nil {
		c.Templates = templating.DefaultConfig()
	}
	if c.Cache == nil {
		c.Cache = DefaultCacheConfig()
	}
	if c.Telemetry == nil {
		c.Telemetry = DefaultTelemetryConfig()
	}
}

// ConfigManager handles thread-safe access to the configuration.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	tm         *templating.TemplateManager
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetTemplateManager registers the template manager to receive config updates.
func (cm *ConfigManager) SetTemplateManager(tm *templating.TemplateManager) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tm = tm
	if tm != nil {
		tm.SetConfig(cm.config.Templates)
	}
}

func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a deep copy of the current configuration, safe to modify.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config.clone()
}

func (c *Config) clone() Config {
	out := Config{}
	if c.Server != nil {
		v := *c.Server
		out.Server = &v
	}
	if c.Templates != nil {
		v := *c.Templates
		v.ImageWidths = slices.Clone(v.ImageWidths)
		out.Templates = &v
	}
	if c.Cache != nil {
		v := *c.Cache
		out.Cache = &v
	}
	if c.Telemetry != nil {
		v := *c.Telemetry
		out.Telemetry = &v
	}
	return out
}

// Update applies the configuration, saves it to disk and pushes template
// settings to the template manager. A template configuration that fails to
// load is rolled back and the update rejected.
func (cm *ConfigManager) Update(newConfig Config) error {
	newConfig.fillDefaults()

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.tm != nil {
		oldTmplConfig := cm.config.Templates
		cm.tm.SetConfig(newConfig.Templates)
		if err := cm.tm.Refresh(); err != nil {
			cm.tm.SetConfig(oldTmplConfig)
			_ = cm.tm.Refresh()
			return fmt.Errorf("template configuration rejected: %w", err)
		}
	}

	*cm.config = newConfig

	data, err := json.MarshalIndent(cm.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	cm.logger.Info("Configuration updated", "path", cm.configPath)
	return nil
}
