// pkg/utils/paths.go - utility functions for working with file paths.

package utils

import (
	"os"
	"regexp"
	"strings"
)

var unsafeSegmentChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// NativePath converts catalog paths, which may use either separator, into the
// host form. On Windows forward slashes become backslashes.
func NativePath(path string) string {
	if os.PathSeparator == '\\' {
		return strings.ReplaceAll(path, "/", `\`)
	}
	return strings.ReplaceAll(path, `\`, "/")
}

// SanitizeSegment replaces everything outside [A-Za-z0-9._-] with an
// underscore so the result is usable as a single directory name.
func SanitizeSegment(s string) string {
	return unsafeSegmentChars.ReplaceAllString(s, "_")
}
