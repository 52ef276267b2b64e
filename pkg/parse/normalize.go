package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Sriram-PR/index-mirror/pkg/utils"
)

// NormalizeURL canonicalises a URL for de-duplication.
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https),
// turns an empty path into "/" and drops the fragment.
// The trailing slash is kept: it is what separates a directory from a file.
// The query string is kept too, since two queries can name two different files.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
		normalized.RawPath = ""
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""

	return normalized.String()
}

// EnsureTrailingSlash appends "/" unless s already ends with one
func EnsureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// ParseRootURL validates a crawl root and returns it normalised with a trailing slash.
// Only absolute http(s) URLs with a host are accepted.
func ParseRootURL(raw string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return "", nil, utils.WrapErrorf(utils.ErrParsing, "invalid root URL '%s': %v", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", nil, utils.WrapErrorf(utils.ErrParsing, "root URL '%s' must use http or https", raw)
	}
	if parsed.Host == "" {
		return "", nil, fmt.Errorf("%w: root URL '%s' has no host", utils.ErrParsing, raw)
	}
	parsed.Path = EnsureTrailingSlash(parsed.Path)
	if parsed.RawPath != "" {
		parsed.RawPath = EnsureTrailingSlash(parsed.RawPath)
	}
	normalized := NormalizeURL(parsed)
	reparsed, _ := url.Parse(normalized)
	return normalized, reparsed, nil
}
