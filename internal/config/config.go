// Package config provides configuration management for hlsingest using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort         = 8080
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultRefreshInterval    = 6 * time.Second
	defaultFetchTimeout       = 10 * time.Second
	defaultManifestTimeout    = 10 * time.Second
	defaultRetryAttempts      = 3
	defaultRetryDelay         = 1 * time.Second
	defaultSegmentCacheBytes  = 64 * 1024 * 1024 // 64MB
	defaultBufferBehindCount  = 72
	defaultLiveEdgePollPeriod = 2 * time.Second
	defaultPrefetchLimit      = 3
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	HLS     HLSConfig     `mapstructure:"hls"`
}

// ServerConfig holds the debug/reference HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// HLSConfig holds configuration for the HLS ingest engine: manifest
// resolution, variant selection, and the sliding-window segment source.
type HLSConfig struct {
	ManifestURL string `mapstructure:"manifest_url"`

	// QualitySelection selects the variant: highest, lowest, auto, or
	// "bandwidth:<bps>" / "resolution:<w>x<h>".
	QualitySelection string `mapstructure:"quality_selection"`

	ManifestTimeout time.Duration `mapstructure:"manifest_timeout"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`

	// RefreshInterval is loaded but not passed to the segment source, which
	// refreshes a live media playlist every half target duration.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	// LiveEdgePollPeriod is how often the live-edge watcher re-checks state.
	LiveEdgePollPeriod time.Duration `mapstructure:"live_edge_poll_period"`

	// SegmentCacheSize is loaded but not passed to the segment source, whose
	// LRU cache is bounded by segment count (MaxCachedSegments), not bytes.
	// Supports human-readable values like "64MB", "1GB", or raw byte counts.
	SegmentCacheSize ByteSize `mapstructure:"segment_cache_size"`

	// BufferBehindSegments caps how many trailing segments are retained
	// behind the live edge before expiration.
	BufferBehindSegments int `mapstructure:"buffer_behind_segments"`

	// PrefetchLimit bounds the number of segments fetched in parallel
	// on each sliding-window refresh.
	PrefetchLimit int `mapstructure:"prefetch_limit"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with HLSINGEST_ and use underscores for nesting.
// Example: HLSINGEST_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hlsingest")
		v.AddConfigPath("$HOME/.hlsingest")
	}

	// Environment variable settings
	v.SetEnvPrefix("HLSINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	// Viper's default hooks (durations, comma-separated slices) plus
	// TextUnmarshaler support so ByteSize accepts values like "64MB".
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// HLS defaults
	v.SetDefault("hls.quality_selection", "highest")
	v.SetDefault("hls.manifest_timeout", defaultManifestTimeout)
	v.SetDefault("hls.fetch_timeout", defaultFetchTimeout)
	v.SetDefault("hls.retry_attempts", defaultRetryAttempts)
	v.SetDefault("hls.retry_delay", defaultRetryDelay)
	v.SetDefault("hls.refresh_interval", defaultRefreshInterval)
	v.SetDefault("hls.live_edge_poll_period", defaultLiveEdgePollPeriod)
	v.SetDefault("hls.segment_cache_size", defaultSegmentCacheBytes)
	v.SetDefault("hls.buffer_behind_segments", defaultBufferBehindCount)
	v.SetDefault("hls.prefetch_limit", defaultPrefetchLimit)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// HLS validation
	if c.HLS.RetryAttempts < 0 {
		return fmt.Errorf("hls.retry_attempts must be non-negative")
	}
	if c.HLS.BufferBehindSegments < 1 {
		return fmt.Errorf("hls.buffer_behind_segments must be at least 1")
	}
	if c.HLS.PrefetchLimit < 1 {
		return fmt.Errorf("hls.prefetch_limit must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
