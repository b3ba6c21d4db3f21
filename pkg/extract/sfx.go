// pkg/extract/sfx.go - 7-Zip self-extracting executables.

package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bodgit/sevenzip"
)

// sevenZipSignature starts every 7z archive.
var sevenZipSignature = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}

const scanChunk = 1 << 20

// ErrNoSignature means src holds no 7z archive.
var ErrNoSignature = errors.New("7z signature not found in SFX binary")

// SevenZipSFX extracts the 7z archive embedded in a self-extracting
// executable. The stub is skipped by locating the archive signature; if the
// stub itself happens to contain the signature bytes the next occurrence is
// tried.
func SevenZipSFX(src, dest string) error {
	wrap := func(err error) error {
		return &ExtractError{Kind: KindSevenZipSFX, Src: src, Dest: dest, Err: err}
	}

	f, err := os.Open(src)
	if err != nil {
		return wrap(fmt.Errorf("open sfx error: %w", err))
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return wrap(err)
	}
	size := fi.Size()

	var (
		start   int64
		openErr error
	)
	for {
		off, err := findSignature(f, size, start)
		if err != nil {
			if openErr != nil && errors.Is(err, ErrNoSignature) {
				return wrap(fmt.Errorf("7z decompress error: %w", openErr))
			}
			return wrap(err)
		}
		r, err := sevenzip.NewReader(io.NewSectionReader(f, off, size-off), size-off)
		if err != nil {
			openErr = err
			start = off + 1
			continue
		}
		if err := extractSevenZip(r, dest); err != nil {
			return wrap(fmt.Errorf("7z decompress error: %w", err))
		}
		return nil
	}
}

// findSignature returns the offset of the first 7z signature at or after
// start.
func findSignature(r io.ReaderAt, size, start int64) (int64, error) {
	overlap := int64(len(sevenZipSignature) - 1)
	buf := make([]byte, scanChunk+overlap)
	for pos := start; pos < size; pos += scanChunk {
		n, err := r.ReadAt(buf, pos)
		if err != nil && err != io.EOF {
			return 0, err
		}
		if i := bytes.Index(buf[:n], sevenZipSignature); i >= 0 {
			return pos + int64(i), nil
		}
		if n < len(buf) {
			break
		}
	}
	return 0, ErrNoSignature
}

func extractSevenZip(r *sevenzip.Reader, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}
	for _, f := range r.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractSevenZipEntry(f, target); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

func extractSevenZipEntry(f *sevenzip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
