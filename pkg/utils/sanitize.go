package utils

import (
	"regexp"
	"strings"
)

// --- Filename Sanitization ---
var invalidFilenameChars = regexp.MustCompile(`[\\*?<>:"/|\x00-\x09\x0B\x0C\x0E-\x1F]`) // Characters invalid in Windows/Unix filenames
var lineBreaks = regexp.MustCompile(`\r?\n|\r`)

// SanitizeFilename cleans a string to be safe for use as a filename component.
// Invalid characters become underscores and line breaks become spaces; the
// rest of the text (including non-ASCII titles) is kept as is.
func SanitizeFilename(name string) string {
	sanitized := lineBreaks.ReplaceAllString(name, " ")
	sanitized = invalidFilenameChars.ReplaceAllString(sanitized, "_")
	sanitized = strings.TrimSpace(sanitized)

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// EnsureSuffix appends suffix to name unless it already ends with it.
func EnsureSuffix(name, suffix string) string {
	if strings.HasSuffix(name, suffix) {
		return name
	}
	return name + suffix
}
