package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is a browser-like identity; some listing servers reject obvious bots
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// ReportFilename is written into OutputDir at the end of every run
const ReportFilename = "download_report.txt"

// AppConfig holds the configuration for one mirror run
type AppConfig struct {
	BaseURL               string           `yaml:"base_url"`
	OutputDir             string           `yaml:"output_dir"`
	Delay                 time.Duration    `yaml:"delay"`       // Pause per worker after every queue item
	NumWorkers            int              `yaml:"num_workers"` // Concurrent download workers
	VerifyTLS             bool             `yaml:"verify_tls"`  // Off by default to tolerate self-signed listing servers
	UserAgent             string           `yaml:"user_agent,omitempty"`
	ListingTimeout        time.Duration    `yaml:"listing_timeout,omitempty"`  // Connect/read idle timeout for listing pages
	DownloadTimeout       time.Duration    `yaml:"download_timeout,omitempty"` // Connect/read idle timeout for file bodies
	MaxListingBytes       int64            `yaml:"max_listing_bytes,omitempty"`
	MaxConcurrentRequests int              `yaml:"max_concurrent_requests,omitempty"` // In-flight HTTP requests across crawler and workers
	MaxRequestsPerSecond  float64          `yaml:"max_requests_per_second,omitempty"` // Global cap, 0 = off
	MaxDepth              int              `yaml:"max_depth,omitempty"`               // Directory levels below root, 0 = unlimited
	ExcludePatterns       []string         `yaml:"exclude_patterns,omitempty"`        // Regexes matched against full URLs
	AllowOutsideRoot      bool             `yaml:"allow_outside_root,omitempty"`      // Follow links leaving the root host/prefix
	StateDir              string           `yaml:"state_dir,omitempty"`               // Run journal location, empty = no journal
	ResetState            bool             `yaml:"reset_state,omitempty"`             // Wipe the journal before the run
	ProgressInterval      time.Duration    `yaml:"progress_interval,omitempty"`
	HTTPClientSettings    HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default(true), true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // TCP connect timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// Default returns a config carrying the documented CLI defaults.
// Validate still has to run to fill the remaining zero values.
func Default() *AppConfig {
	return &AppConfig{
		OutputDir:  "./downloaded_files",
		Delay:      1 * time.Second,
		NumWorkers: 3,
		VerifyTLS:  false,
	}
}

// LoadFile reads a YAML config file on top of Default()
func LoadFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config '%s': %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config '%s': %w", path, err)
	}
	return cfg, nil
}

// ReportPath returns the location of the run report
func (c *AppConfig) ReportPath() string {
	return joinPath(c.OutputDir, ReportFilename)
}
