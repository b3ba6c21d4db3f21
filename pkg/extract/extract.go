// pkg/extract/extract.go - archive extraction for installer steps.

package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind selects the archive reader.
type Kind string

const (
	KindZip         Kind = "zip"
	KindSevenZipSFX Kind = "sevenZipSfx"
)

// ExtractError reports a failed extraction.
type ExtractError struct {
	Kind Kind
	Src  string
	Dest string
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s extract %s -> %s: %v", e.Kind, e.Src, e.Dest, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// Archive extracts src into dest using the reader for kind. Both paths must
// already be resolved.
func Archive(kind Kind, src, dest string) error {
	var err error
	switch kind {
	case KindZip:
		err = Zip(src, dest)
	case KindSevenZipSFX:
		err = SevenZipSFX(src, dest)
	default:
		err = fmt.Errorf("unknown archive kind %q", kind)
	}
	if err != nil {
		if ee, ok := err.(*ExtractError); ok {
			return ee
		}
		return &ExtractError{Kind: kind, Src: src, Dest: dest, Err: err}
	}
	return nil
}

// safeJoin joins an archive entry name onto dest and refuses names that would
// land outside dest.
func safeJoin(dest, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	target := filepath.Join(dest, filepath.FromSlash(name))
	root := filepath.Clean(dest)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal file path: %s", name)
	}
	return target, nil
}

func ensureOwnerWritable(mode os.FileMode, dir bool) os.FileMode {
	perm := mode.Perm()
	if dir {
		return perm | 0700
	}
	return perm | 0600
}
