package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			BasePath: "/data/media",
		},
		Upstream: UpstreamConfig{
			MetadataURL:    "https://meta.example.com/api/",
			LinksURL:       "https://links.example.com/api/download",
			AllowedDomains: []string{"tiktok.com"},
		},
		RateLimit: RateLimitConfig{MinInterval: 2 * time.Second, MaxPerMinute: 30},
		Cache:     CacheConfig{TTL: 5 * time.Minute, MaxEntries: 50},
		Download:  DownloadConfig{JPEGQuality: 90},
		Bulk:      BulkConfig{BatchSize: 3},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() should pass, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"missing storage path", func(c *Config) { c.Storage.BasePath = "" }, true},
		{"missing metadata url", func(c *Config) { c.Upstream.MetadataURL = "" }, true},
		{"relative links url", func(c *Config) { c.Upstream.LinksURL = "/api/download" }, true},
		{"ftp proxy url", func(c *Config) { c.Download.ProxyURL = "ftp://proxy" }, true},
		{"valid proxy url", func(c *Config) { c.Download.ProxyURL = "https://proxy.example.com/download" }, false},
		{"health url without proxy", func(c *Config) { c.Download.ProxyHealthURL = "https://proxy.example.com/health" }, true},
		{"no allowed domains", func(c *Config) { c.Upstream.AllowedDomains = nil }, true},
		{"zero per-minute cap", func(c *Config) { c.RateLimit.MaxPerMinute = 0 }, true},
		{"zero cache size", func(c *Config) { c.Cache.MaxEntries = 0 }, true},
		{"zero batch size", func(c *Config) { c.Bulk.BatchSize = 0 }, true},
		{"jpeg quality too high", func(c *Config) { c.Download.JPEGQuality = 101 }, true},
		{"api key optional", func(c *Config) { c.Server.APIKey = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{
			name: "default",
			cfg:  ServerConfig{Host: "0.0.0.0", Port: 9848},
			want: "0.0.0.0:9848",
		},
		{
			name: "localhost",
			cfg:  ServerConfig{Host: "localhost", Port: 8080},
			want: "localhost:8080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Address(); got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_PATH", "/data/test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.RateLimit.MinInterval != 2*time.Second {
		t.Errorf("MinInterval = %v, want 2s", cfg.RateLimit.MinInterval)
	}
	if cfg.RateLimit.MaxPerMinute != 30 {
		t.Errorf("MaxPerMinute = %d, want 30", cfg.RateLimit.MaxPerMinute)
	}
	if cfg.Cache.TTL != 5*time.Minute || cfg.Cache.MaxEntries != 50 {
		t.Errorf("Cache = %+v, want 5m/50", cfg.Cache)
	}
	if cfg.Upstream.Timeout != 15*time.Second {
		t.Errorf("Upstream.Timeout = %v, want 15s", cfg.Upstream.Timeout)
	}
	if cfg.Download.ProbeTimeout != 5*time.Second {
		t.Errorf("ProbeTimeout = %v, want 5s", cfg.Download.ProbeTimeout)
	}
	if cfg.Download.MaxAttempts != 2 || cfg.Download.RetryDelay != time.Second {
		t.Errorf("Download retry = %d/%v, want 2/1s", cfg.Download.MaxAttempts, cfg.Download.RetryDelay)
	}
	if cfg.Bulk.BatchSize != 3 || cfg.Bulk.MaxAttempts != 3 || cfg.Bulk.ItemDelay != 500*time.Millisecond {
		t.Errorf("Bulk = %+v", cfg.Bulk)
	}
	if len(cfg.Upstream.AllowedDomains) != 3 || cfg.Upstream.AllowedDomains[0] != "tiktok.com" {
		t.Errorf("AllowedDomains = %v", cfg.Upstream.AllowedDomains)
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// envconfig.Process() applies defaults even when YAML is loaded, so only
	// fields without a default tag keep their YAML value.
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("STORAGE_PATH", "/custom/path")

	yamlContent := `
server:
  api_key: "yaml-api-key"
download:
  proxy_url: "https://proxy.example.com/download"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.APIKey != "yaml-api-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Server.APIKey, "yaml-api-key")
	}
	if cfg.Download.ProxyURL != "https://proxy.example.com/download" {
		t.Errorf("ProxyURL = %q", cfg.Download.ProxyURL)
	}
	if cfg.Storage.BasePath != "/custom/path" {
		t.Errorf("BasePath = %q, want %q", cfg.Storage.BasePath, "/custom/path")
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  api_key: "yaml-api-key"
storage:
  base_path: "/yaml/path"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("API_KEY", "env-api-key")
	t.Setenv("STORAGE_PATH", "/env/path")
	t.Setenv("ALLOWED_DOMAINS", "tiktok.com,example.org")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.APIKey != "env-api-key" {
		t.Errorf("APIKey should be from env, got %q", cfg.Server.APIKey)
	}
	if cfg.Storage.BasePath != "/env/path" {
		t.Errorf("BasePath should be from env, got %q", cfg.Storage.BasePath)
	}
	if len(cfg.Upstream.AllowedDomains) != 2 || cfg.Upstream.AllowedDomains[1] != "example.org" {
		t.Errorf("AllowedDomains = %v", cfg.Upstream.AllowedDomains)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidYAML := `
server:
  host: "localhost
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load should fail for invalid YAML")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load should fail for nonexistent file")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("STORAGE_PATH", "")

	_, err := Load("")
	if err == nil {
		t.Error("Load should fail validation without required values")
	}
}
