package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"DisguisedListing", ErrDisguisedListing, "Content_DisguisedListing"},
		{"EmptyDownload", ErrEmptyDownload, "Content_Empty"},
		{"PathTraversal", ErrPathTraversal, "Policy_LocalPath"},
		{"EmptyPath", ErrEmptyPath, "Policy_LocalPath"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"QueueClosed", ErrQueueClosed, "Internal_QueueClosed"},
		{"TaskPanic", fmt.Errorf("%w: boom", ErrTaskPanic), "Internal_Panic"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ClientHTTPCodes(t *testing.T) {
	tests := []struct {
		status   string
		expected string
	}{
		{"404 Not Found", "HTTP_404"},
		{"403 Forbidden", "HTTP_403"},
		{"401 Unauthorized", "HTTP_401"},
		{"429 Too Many Requests", "HTTP_429"},
		{"410 Gone", "HTTP_4xx"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			err := fmt.Errorf("%w: status %s", ErrClientHTTPError, tt.status)
			if got := CategorizeError(err); got != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", err, got, tt.expected)
			}
		})
	}
}

func TestCategorizeError_WrappedAndContext(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"DoubleWrappedDisguised", fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrDisguisedListing)), "Content_DisguisedListing"},
		{"FilesystemPermission", fmt.Errorf("%w: %w", ErrFilesystem, os.ErrPermission), "Filesystem_Permission"},
		{"FilesystemNotExist", fmt.Errorf("%w: %w", ErrFilesystem, os.ErrNotExist), "Filesystem_NotExist"},
		{"Canceled", context.Canceled, "System_ContextCanceled"},
		{"BodyReadCanceled", fmt.Errorf("%w: %w", ErrResponseBodyRead, context.Canceled), "System_ContextCanceled"},
		{"Deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), "Network_Timeout"},
		{"ParsingURL", fmt.Errorf("%w: bad URL", ErrParsing), "Content_ParsingURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCategorizeError_NetworkStrings(t *testing.T) {
	tests := []struct {
		msg      string
		expected string
	}{
		{"dial tcp: connection refused", "Network_ConnectionRefused"},
		{"lookup files.example: no such host", "Network_DNSLookup"},
		{"x509: certificate signed by unknown authority", "Network_TLS"},
		{"read: connection reset by peer", "Network_ConnectionReset"},
		{"something odd happened", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := CategorizeError(errors.New(tt.msg)); got != tt.expected {
				t.Errorf("CategorizeError(%q) = %q, want %q", tt.msg, got, tt.expected)
			}
		})
	}
}

func TestWrapErrorf(t *testing.T) {
	if WrapErrorf(nil, "ignored %d", 1) != nil {
		t.Error("WrapErrorf(nil) should return nil")
	}
	err := WrapErrorf(ErrFilesystem, "creating %s", "/tmp/x")
	if !errors.Is(err, ErrFilesystem) {
		t.Errorf("WrapErrorf result does not wrap sentinel: %v", err)
	}
	if err.Error() != "filesystem error: creating /tmp/x" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

// --- Sanitize / Pattern Tests ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"files.example.com", "files.example.com"},
		{"Files.Example.com:8080", "files.example.com_8080"},
		{"a//b\\c", "a_b_c"},
		{"...", "untitled"},
		{"", "untitled"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.input); got != tt.expected {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestCompileRegexPatterns(t *testing.T) {
	compiled, err := CompileRegexPatterns([]string{`\.iso$`, "", "  ", `/tmp/`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(compiled) != 2 {
		t.Fatalf("expected 2 compiled patterns, got %d", len(compiled))
	}
	if !MatchesAny(compiled, "http://h/pub/image.iso") {
		t.Error("expected .iso URL to match")
	}
	if MatchesAny(compiled, "http://h/pub/readme.txt") {
		t.Error("did not expect readme.txt to match")
	}
	if MatchesAny(nil, "anything") {
		t.Error("nil pattern list should match nothing")
	}
}

func TestCompileRegexPatterns_InvalidPattern(t *testing.T) {
	_, err := CompileRegexPatterns([]string{"ok", "[unclosed"})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
	if !errors.Is(err, ErrConfigValidation) {
		t.Errorf("expected ErrConfigValidation, got %v", err)
	}
}
