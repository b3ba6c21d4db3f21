// pkg/installer/tempdir.go - per-run working directories.

package installer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aviutl2catalog/catalog/pkg/utils"
)

// TempDirName is the parent of all working directories.
const TempDirName = "installer-tmp"

// TempDirFor returns the working directory of a run for id at version. An
// empty version is named "latest".
func TempDirFor(root, id, version string) string {
	if version == "" {
		version = "latest"
	}
	return filepath.Join(root, TempDirName, utils.SanitizeSegment(id+"-"+version))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create working directory %s: %w", dir, err)
	}
	return dir, nil
}
