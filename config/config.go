package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LedgerDisabled as the ledger path turns ingest history off.
const LedgerDisabled = "none"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Segment   SegmentConfig   `yaml:"segment"`
	Browser   BrowserConfig   `yaml:"browser"`
	Capture   CaptureConfig   `yaml:"capture"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// StorageConfig controls where artifacts and history are kept.
type StorageConfig struct {
	// OutputDir is the root of the artifact tree.
	OutputDir string `yaml:"output_dir"` // default: "./Outputs"

	// LedgerPath is the SQLite ingest history file. "none" disables it.
	LedgerPath string `yaml:"ledger_path"` // default: "<OutputDir>/ledger.db"

	// CacheMaxEntries bounds the in-memory baseline cache.
	CacheMaxEntries int `yaml:"cache_max_entries"` // default: 1000

	// AnnotateDelta outlines modified elements on incremental screenshots.
	AnnotateDelta bool `yaml:"annotate_delta"` // default: true

	// ScreenshotMaxPixels rejects screenshots whose declared width×height
	// exceeds it, before any pixel data is decoded.
	ScreenshotMaxPixels int `yaml:"screenshot_max_pixels"` // default: 40000000
}

// SegmentConfig controls the segmentation hand-off.
type SegmentConfig struct {
	// WebhookURL receives segmentation jobs. Empty logs jobs instead.
	WebhookURL string `yaml:"webhook_url"`

	// WebhookSecret signs webhook bodies with HMAC-SHA256.
	WebhookSecret string `yaml:"webhook_secret"`

	// QueueSize is the number of jobs buffered before new ones are dropped.
	QueueSize int `yaml:"queue_size"` // default: 256

	// Workers is the number of concurrent deliveries.
	Workers int `yaml:"workers"` // default: 2

	// Timeout bounds one delivery including retries.
	Timeout time.Duration `yaml:"timeout"` // default: 2m
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int `yaml:"max_pages"` // default: 4

	// Proxy is the proxy URL for browser navigation and static fetches.
	Proxy string `yaml:"proxy"`

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"browser_bin"`
}

// CaptureConfig controls the browser capture agent.
type CaptureConfig struct {
	// Timeout is the default deadline for a whole capture job.
	Timeout time.Duration `yaml:"timeout"` // default: 5m

	// NavigationTimeout is the max time for page navigation alone.
	NavigationTimeout time.Duration `yaml:"navigation_timeout"` // default: 30s

	// SettleTimeout bounds the wait for a viewport to stop changing.
	SettleTimeout time.Duration `yaml:"settle_timeout"` // default: 3s

	// FetchTimeout bounds static HTML fetches for locator derivation.
	FetchTimeout time.Duration `yaml:"fetch_timeout"` // default: 15s

	// MaxScrolls is the default number of viewports per capture.
	MaxScrolls int `yaml:"max_scrolls"` // default: 20

	// MinArea is the default minimum element area in CSS pixels.
	MinArea int `yaml:"min_area"` // default: 1

	// BlockedResourceTypes lists resource types blocked during capture.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resources"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool `yaml:"enabled"` // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 20

	// Burst is the maximum burst size per API key.
	Burst int `yaml:"burst"` // default: 40
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Mode: "release",
		},
		Storage: StorageConfig{
			OutputDir:       "./Outputs",
			CacheMaxEntries: 1000,
			AnnotateDelta:   true,

			ScreenshotMaxPixels: 40_000_000,
		},
		Segment: SegmentConfig{
			QueueSize: 256,
			Workers:   2,
			Timeout:   2 * time.Minute,
		},
		Browser: BrowserConfig{
			Headless: true,
			MaxPages: 4,
		},
		Capture: CaptureConfig{
			Timeout:              5 * time.Minute,
			NavigationTimeout:    30 * time.Second,
			SettleTimeout:        3 * time.Second,
			FetchTimeout:         15 * time.Second,
			MaxScrolls:           20,
			MinArea:              1,
			BlockedResourceTypes: []string{"Font", "Media"},
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// SCROLLSNAP_CONFIG_FILE if set, then SCROLLSNAP_* environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("SCROLLSNAP_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if cfg.Storage.LedgerPath == "" {
		cfg.Storage.LedgerPath = filepath.Join(cfg.Storage.OutputDir, "ledger.db")
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path. Keys absent from the file keep
// their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// LedgerEnabled reports whether ingest history should be recorded.
func (c *Config) LedgerEnabled() bool {
	return c.Storage.LedgerPath != "" && c.Storage.LedgerPath != LedgerDisabled
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("SCROLLSNAP_HOST", c.Server.Host)
	c.Server.Port = envIntOr("SCROLLSNAP_PORT", c.Server.Port)
	c.Server.Mode = envOr("SCROLLSNAP_MODE", c.Server.Mode)

	c.Storage.OutputDir = envOr("SCROLLSNAP_OUTPUT_DIR", c.Storage.OutputDir)
	c.Storage.LedgerPath = envOr("SCROLLSNAP_LEDGER_PATH", c.Storage.LedgerPath)
	c.Storage.CacheMaxEntries = envIntOr("SCROLLSNAP_CACHE_MAX_ENTRIES", c.Storage.CacheMaxEntries)
	c.Storage.AnnotateDelta = envBoolOr("SCROLLSNAP_ANNOTATE_DELTA", c.Storage.AnnotateDelta)
	c.Storage.ScreenshotMaxPixels = envIntOr("SCROLLSNAP_SCREENSHOT_MAX_PIXELS", c.Storage.ScreenshotMaxPixels)

	c.Segment.WebhookURL = envOr("SCROLLSNAP_SEGMENT_WEBHOOK_URL", c.Segment.WebhookURL)
	c.Segment.WebhookSecret = envOr("SCROLLSNAP_SEGMENT_WEBHOOK_SECRET", c.Segment.WebhookSecret)
	c.Segment.QueueSize = envIntOr("SCROLLSNAP_SEGMENT_QUEUE_SIZE", c.Segment.QueueSize)
	c.Segment.Workers = envIntOr("SCROLLSNAP_SEGMENT_WORKERS", c.Segment.Workers)
	c.Segment.Timeout = envDurationOr("SCROLLSNAP_SEGMENT_TIMEOUT", c.Segment.Timeout)

	c.Browser.Headless = envBoolOr("SCROLLSNAP_HEADLESS", c.Browser.Headless)
	c.Browser.MaxPages = envIntOr("SCROLLSNAP_MAX_PAGES", c.Browser.MaxPages)
	c.Browser.Proxy = envOr("SCROLLSNAP_PROXY", c.Browser.Proxy)
	c.Browser.NoSandbox = envBoolOr("SCROLLSNAP_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("SCROLLSNAP_BROWSER_BIN", c.Browser.BrowserBin)

	c.Capture.Timeout = envDurationOr("SCROLLSNAP_CAPTURE_TIMEOUT", c.Capture.Timeout)
	c.Capture.NavigationTimeout = envDurationOr("SCROLLSNAP_NAV_TIMEOUT", c.Capture.NavigationTimeout)
	c.Capture.SettleTimeout = envDurationOr("SCROLLSNAP_SETTLE_TIMEOUT", c.Capture.SettleTimeout)
	c.Capture.FetchTimeout = envDurationOr("SCROLLSNAP_FETCH_TIMEOUT", c.Capture.FetchTimeout)
	c.Capture.MaxScrolls = envIntOr("SCROLLSNAP_MAX_SCROLLS", c.Capture.MaxScrolls)
	c.Capture.MinArea = envIntOr("SCROLLSNAP_MIN_AREA", c.Capture.MinArea)
	c.Capture.BlockedResourceTypes = envSliceOr("SCROLLSNAP_BLOCKED_RESOURCES", c.Capture.BlockedResourceTypes)

	c.Auth.Enabled = envBoolOr("SCROLLSNAP_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("SCROLLSNAP_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("SCROLLSNAP_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("SCROLLSNAP_RATE_BURST", c.RateLimit.Burst)

	c.Log.Level = envOr("SCROLLSNAP_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("SCROLLSNAP_LOG_FORMAT", c.Log.Format)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
