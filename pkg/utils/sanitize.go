package utils

import (
	"regexp"
	"strings"
)

var (
	invalidFilenameChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`) // Invalid in Windows/Unix filenames
	consecutiveUnderscores = regexp.MustCompile(`_+`)
)

const maxFilenameLength = 100

// SanitizeFilename turns an arbitrary string (typically a host[:port]) into a single safe path component.
// Used for naming per-host state directories.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(strings.ToLower(name), "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_. ")

	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(sanitized[:maxFilenameLength], "_. ")
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}
