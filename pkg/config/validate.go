package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Required: BaseURL
	if strings.TrimSpace(c.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base URL is required", utils.ErrConfigValidation)
	}
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	parsed, parseErr := url.Parse(c.BaseURL)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: invalid base URL '%s': %v", utils.ErrConfigValidation, c.BaseURL, parseErr)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: base URL '%s' must use http or https", utils.ErrConfigValidation, c.BaseURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: base URL '%s' has no host", utils.ErrConfigValidation, c.BaseURL)
	}

	// Exclude patterns must compile
	if _, reErr := utils.CompileRegexPatterns(c.ExcludePatterns); reErr != nil {
		return nil, reErr
	}

	// OutputDir
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './downloaded_files'")
		c.OutputDir = "./downloaded_files"
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 3")
		c.NumWorkers = 3
	}

	// Delay
	if c.Delay < 0 {
		warnings = append(warnings, "delay cannot be negative, setting to 0")
		c.Delay = 0
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ListingTimeout <= 0 {
		c.ListingTimeout = 30 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 60 * time.Second
	}
	if c.MaxListingBytes <= 0 {
		c.MaxListingBytes = 10 * 1024 * 1024
	}

	// MaxConcurrentRequests: every worker plus the crawler may hold one request
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = c.NumWorkers + 1
	} else if c.MaxConcurrentRequests < 2 {
		warnings = append(warnings, "max_concurrent_requests below 2 serialises listing fetches behind downloads")
	}

	if c.MaxRequestsPerSecond < 0 {
		warnings = append(warnings, "max_requests_per_second cannot be negative, disabling global rate cap")
		c.MaxRequestsPerSecond = 0
	}

	if c.MaxDepth < 0 {
		warnings = append(warnings, "max_depth cannot be negative, setting to 0 (unlimited)")
		c.MaxDepth = 0
	}

	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 30 * time.Second
	}

	if c.ResetState && c.StateDir == "" {
		warnings = append(warnings, "reset_state has no effect without state_dir")
	}

	if !c.VerifyTLS && parsed.Scheme == "https" {
		warnings = append(warnings, "TLS certificate verification is disabled")
	}

	c.validateHTTPClientSettings()

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = c.MaxConcurrentRequests
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = c.ListingTimeout
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

func joinPath(dir, name string) string {
	return filepath.Join(dir, name)
}
