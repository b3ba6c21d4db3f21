// pkg/utils/hash.go - utility functions for hashing files.

package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"
)

// HashFileXXH3 returns the XXH3-128 digest of a file as 32 lowercase hex chars,
// high word first. This is the format catalog versions declare.
func HashFileXXH3(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	sum := h.Sum128()
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo), nil
}

// FormatBytes renders a byte count for progress labels.
func FormatBytes(n int64) string {
	if n < 0 {
		return "?"
	}
	return humanize.IBytes(uint64(n))
}
