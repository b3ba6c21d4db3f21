// pkg/download/filename.go - deriving safe local file names.

package download

import (
	"net/url"
	"strings"
)

// DefaultFileName is used when no usable name can be derived.
const DefaultFileName = "download.bin"

var filenameReplacer = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeFilename replaces path separators and characters reserved on
// Windows with '_' and trims surrounding whitespace. An empty result becomes
// DefaultFileName.
func SanitizeFilename(name string) string {
	out := strings.TrimSpace(filenameReplacer.Replace(name))
	if out == "" {
		return DefaultFileName
	}
	return out
}

// FilenameFromURL returns the sanitised, percent-decoded last non-empty path
// segment of u.
func FilenameFromURL(u *url.URL) string {
	segments := strings.Split(u.EscapedPath(), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] == "" {
			continue
		}
		name, err := url.PathUnescape(segments[i])
		if err != nil {
			name = segments[i]
		}
		return SanitizeFilename(name)
	}
	return DefaultFileName
}

// FilenameFromContentDisposition extracts the file name from a
// Content-Disposition header. The RFC 5987 filename* form wins over a plain
// filename parameter. ok is false when neither is present.
func FilenameFromContentDisposition(header string) (name string, ok bool) {
	if header == "" {
		return "", false
	}
	parts := strings.Split(header, ";")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if !hasPrefixFold(part, "filename*=") {
			continue
		}
		encoded := strings.Trim(strings.TrimSpace(part[len("filename*="):]), `"`)
		if _, payload, found := strings.Cut(encoded, "''"); found {
			encoded = payload
		}
		decoded, err := url.PathUnescape(encoded)
		if err != nil {
			decoded = encoded
		}
		return SanitizeFilename(decoded), true
	}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if !hasPrefixFold(part, "filename=") {
			continue
		}
		return SanitizeFilename(strings.Trim(strings.TrimSpace(part[len("filename="):]), `"`)), true
	}
	return "", false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
