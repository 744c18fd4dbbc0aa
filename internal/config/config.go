package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Download  DownloadConfig  `yaml:"download"`
	Bulk      BulkConfig      `yaml:"bulk"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9848"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// StorageConfig holds filesystem storage configuration for saved media.
type StorageConfig struct {
	BasePath     string        `yaml:"base_path" envconfig:"STORAGE_PATH" default:"/data/media"`
	TempPath     string        `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"/data/temp"`
	MinFreeBytes int64         `yaml:"min_free_bytes" envconfig:"STORAGE_MIN_FREE_BYTES" default:"104857600"` // 100MB
	ReleaseDelay time.Duration `yaml:"release_delay" envconfig:"STORAGE_RELEASE_DELAY" default:"1s"`
}

// UpstreamConfig holds the metadata and download-link API settings.
type UpstreamConfig struct {
	MetadataURL    string        `yaml:"metadata_url" envconfig:"METADATA_API_URL" default:"https://www.tikwm.com/api/"`
	LinksURL       string        `yaml:"links_url" envconfig:"LINKS_API_URL" default:"https://api.tiklydown.eu.org/api/download"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"UPSTREAM_TIMEOUT" default:"15s"`
	MaxAttempts    int           `yaml:"max_attempts" envconfig:"UPSTREAM_MAX_ATTEMPTS" default:"2"`
	RetryDelay     time.Duration `yaml:"retry_delay" envconfig:"UPSTREAM_RETRY_DELAY" default:"1s"`
	AllowedDomains []string      `yaml:"allowed_domains" envconfig:"ALLOWED_DOMAINS" default:"tiktok.com,douyin.com,iesdouyin.com"`
	UserAgent      string        `yaml:"user_agent" envconfig:"UPSTREAM_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// RateLimitConfig bounds how often the upstream APIs are called.
type RateLimitConfig struct {
	MinInterval  time.Duration `yaml:"min_interval" envconfig:"RATE_MIN_INTERVAL" default:"2s"`
	MaxPerMinute int           `yaml:"max_per_minute" envconfig:"RATE_MAX_PER_MINUTE" default:"30"`
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl" envconfig:"CACHE_TTL" default:"5m"`
	MaxEntries int           `yaml:"max_entries" envconfig:"CACHE_MAX_ENTRIES" default:"50"`
}

// DownloadConfig holds media download configuration.
type DownloadConfig struct {
	ProxyURL       string        `yaml:"proxy_url" envconfig:"DOWNLOAD_PROXY_URL"`
	ProxyHealthURL string        `yaml:"proxy_health_url" envconfig:"DOWNLOAD_PROXY_HEALTH_URL"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" envconfig:"DOWNLOAD_PROBE_TIMEOUT" default:"5s"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"2m"`
	MaxAttempts    int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS" default:"2"`
	RetryDelay     time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"1s"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"30s"`
	MaxBytes       int64         `yaml:"max_bytes" envconfig:"DOWNLOAD_MAX_BYTES" default:"2147483648"` // 2GB
	UserAgent      string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
	Referer        string        `yaml:"referer" envconfig:"DOWNLOAD_REFERER" default:"https://www.tiktok.com/"`
	JPEGQuality    int           `yaml:"jpeg_quality" envconfig:"DOWNLOAD_JPEG_QUALITY" default:"90"`
}

// BulkConfig holds image batch configuration.
type BulkConfig struct {
	BatchSize     int           `yaml:"batch_size" envconfig:"BULK_BATCH_SIZE" default:"3"`
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"BULK_MAX_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"BULK_RETRY_DELAY" default:"1s"`
	ItemDelay     time.Duration `yaml:"item_delay" envconfig:"BULK_ITEM_DELAY" default:"500ms"`
	MaxImageBytes int64         `yaml:"max_image_bytes" envconfig:"BULK_MAX_IMAGE_BYTES" default:"52428800"` // 50MB
}

// EventsConfig holds notification buffer configuration.
type EventsConfig struct {
	RingBufferSize int `yaml:"ring_buffer_size" envconfig:"EVENTS_BUFFER_SIZE" default:"1000"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	if err := validateURL("METADATA_API_URL", c.Upstream.MetadataURL, true); err != nil {
		return err
	}
	if err := validateURL("LINKS_API_URL", c.Upstream.LinksURL, true); err != nil {
		return err
	}
	if err := validateURL("DOWNLOAD_PROXY_URL", c.Download.ProxyURL, false); err != nil {
		return err
	}
	if c.Download.ProxyHealthURL != "" && c.Download.ProxyURL == "" {
		return fmt.Errorf("DOWNLOAD_PROXY_HEALTH_URL requires DOWNLOAD_PROXY_URL")
	}
	if len(c.Upstream.AllowedDomains) == 0 {
		return fmt.Errorf("ALLOWED_DOMAINS must list at least one domain")
	}
	if c.RateLimit.MaxPerMinute <= 0 {
		return fmt.Errorf("RATE_MAX_PER_MINUTE must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive")
	}
	if c.Bulk.BatchSize <= 0 {
		return fmt.Errorf("BULK_BATCH_SIZE must be positive")
	}
	if c.Download.JPEGQuality < 1 || c.Download.JPEGQuality > 100 {
		return fmt.Errorf("DOWNLOAD_JPEG_QUALITY must be between 1 and 100")
	}
	return nil
}

func validateURL(name, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", name)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
