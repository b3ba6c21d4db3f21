// pkg/fsops/fsops.go - copy, delete and path helpers used by installer steps.

package fsops

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

// absPattern accepts drive-letter paths, UNC paths and rooted POSIX paths,
// independent of the host OS.
var absPattern = regexp.MustCompile(`^([A-Za-z]:[\\/]|\\\\|/)`)

// IsAbs reports whether p is an absolute path on either Windows or POSIX.
func IsAbs(p string) bool {
	return absPattern.MatchString(p)
}

// ResolveRel returns p unchanged when it is absolute, otherwise p joined onto
// base.
func ResolveRel(base, p string) string {
	if IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// DeleteError is returned when a path exists but could not be removed.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// DeletePath removes path recursively. A missing path returns false and no
// error. When the recursive remove fails the path is stat'ed and removed
// according to its kind before giving up.
func DeletePath(path string) (bool, error) {
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &DeleteError{Path: path, Err: err}
	}

	err := os.RemoveAll(path)
	if err == nil {
		return true, nil
	}

	fi, statErr := os.Lstat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return true, nil
		}
		return false, &DeleteError{Path: path, Err: err}
	}
	if fi.IsDir() {
		err = os.RemoveAll(path)
	} else {
		// read-only files on Windows refuse removal until the bit is cleared
		_ = os.Chmod(path, 0644)
		err = os.Remove(path)
	}
	if err != nil {
		return false, &DeleteError{Path: path, Err: err}
	}
	return true, nil
}

// CopyPattern copies every match of pattern into destDir and returns the
// number of files copied. A matched file lands directly in destDir; a matched
// directory has its contents copied recursively into destDir. An existing
// path is copied as is, even when its name contains glob metacharacters.
// Otherwise pattern is matched with doublestar syntax (*, **, ?, [..], {a,b}).
func CopyPattern(pattern, destDir string) (int, error) {
	if _, err := os.Lstat(pattern); err == nil {
		return copyItem(pattern, destDir)
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid copy pattern %q: %w", pattern, err)
	}

	count := 0
	for _, src := range matches {
		n, err := copyItem(src, destDir)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func copyItem(src, destDir string) (int, error) {
	fi, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", destDir, err)
	}

	if !fi.IsDir() {
		if err := copyFile(src, filepath.Join(destDir, filepath.Base(src)), fi.Mode()); err != nil {
			return 0, err
		}
		return 1, nil
	}

	count := 0
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := copyFile(path, target, info.Mode()); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm()|0200)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

