package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Checker    CheckerConfig    `mapstructure:"checker"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Networks   NetworksConfig   `mapstructure:"networks"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// ConnectionConfig bounds connection establishment and node requests.
type ConnectionConfig struct {
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	MaxRounds        int           `mapstructure:"max_rounds"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// CheckerConfig holds settings related to the endpoint checking process.
type CheckerConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	CheckTimeout  time.Duration `mapstructure:"check_timeout"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	RunOnStartup  bool          `mapstructure:"run_on_startup"`
}

// CacheConfig holds settings for the caching layer.
type CacheConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
	SnapshotTTL       time.Duration `mapstructure:"snapshot_ttl"`
}

// IndexerConfig holds configuration for the transfer history indexer.
type IndexerConfig struct {
	BaseURLTemplate string        `mapstructure:"base_url_template"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Rows            int           `mapstructure:"rows"`
}

// WatcherConfig controls the background head watchers.
type WatcherConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	RestartDelay time.Duration `mapstructure:"restart_delay"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

// NetworksConfig points at an optional registry override file.
type NetworksConfig struct {
	File string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		fmt.Printf("Warning: Config file not found in %s or '.', using defaults/env vars\n", configPath)
	}

	v.SetEnvPrefix("SUBSTRATE_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "substrate-gateway")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("connection.attempt_timeout", "30s")
	v.SetDefault("connection.retry_delay", "1500ms")
	v.SetDefault("connection.max_rounds", 4)
	v.SetDefault("connection.handshake_timeout", "10s")
	v.SetDefault("connection.request_timeout", "15s")
	v.SetDefault("checker.check_interval", "15m")
	v.SetDefault("checker.check_timeout", "5s")
	v.SetDefault("checker.max_workers", 10)
	v.SetDefault("checker.cache_ttl", "30m")
	v.SetDefault("checker.run_on_startup", true)
	v.SetDefault("cache.default_expiration", "30m")
	v.SetDefault("cache.cleanup_interval", "1h")
	v.SetDefault("cache.snapshot_ttl", "24h")
	v.SetDefault("indexer.base_url_template", "https://%s.api.subscan.io")
	v.SetDefault("indexer.api_key", "")
	v.SetDefault("indexer.timeout", "15s")
	v.SetDefault("indexer.rows", 15)
	v.SetDefault("watcher.enabled", true)
	v.SetDefault("watcher.restart_delay", "10s")
	v.SetDefault("watcher.stale_after", "1m")
	v.SetDefault("networks.file", "")
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Connection.AttemptTimeout <= 0 {
		return fmt.Errorf("connection.attempt_timeout must be positive, got %v", c.Connection.AttemptTimeout)
	}
	if c.Connection.MaxRounds <= 0 {
		return fmt.Errorf("connection.max_rounds must be positive, got %d", c.Connection.MaxRounds)
	}
	if c.Connection.RetryDelay < 0 {
		return fmt.Errorf("connection.retry_delay must not be negative, got %v", c.Connection.RetryDelay)
	}
	if !strings.Contains(c.Indexer.BaseURLTemplate, "%s") {
		return fmt.Errorf("indexer.base_url_template must contain %%s, got %q", c.Indexer.BaseURLTemplate)
	}
	return nil
}

func (c CheckerConfig) GetTimeout() time.Duration {
	return c.CheckTimeout
}

func (c CheckerConfig) GetCheckInterval() time.Duration {
	return c.CheckInterval
}

func (c CheckerConfig) GetCacheTTL() time.Duration {
	return c.CacheTTL
}

func (c CacheConfig) GetDefaultExpiration() time.Duration {
	return c.DefaultExpiration
}

func (c CacheConfig) GetCleanupInterval() time.Duration {
	return c.CleanupInterval
}
