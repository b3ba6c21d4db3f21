// pkg/extract/zip.go - zip extraction with Shift_JIS entry names.

package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"
	"golang.org/x/text/encoding/japanese"
)

const utf8NameFlag = 0x800

// Zip extracts the zip archive src into dest. Entries without the UTF-8
// name flag whose names are not valid UTF-8 are decoded as Shift_JIS, the
// encoding most Japanese archivers write.
func Zip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return &ExtractError{Kind: KindZip, Src: src, Dest: dest, Err: fmt.Errorf("zip open error: %w", err)}
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return &ExtractError{Kind: KindZip, Src: src, Dest: dest, Err: err}
	}
	for _, f := range r.File {
		if err := extractZipEntry(f, dest); err != nil {
			return &ExtractError{Kind: KindZip, Src: src, Dest: dest, Err: err}
		}
	}
	return nil
}

func entryName(f *zip.File) string {
	if f.Flags&utf8NameFlag != 0 || utf8.ValidString(f.Name) {
		return f.Name
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().String(f.Name)
	if err != nil {
		return f.Name
	}
	return decoded
}

func extractZipEntry(f *zip.File, dest string) error {
	name := entryName(f)
	target, err := safeJoin(dest, name)
	if err != nil {
		return err
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, ensureOwnerWritable(f.Mode(), true))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, ensureOwnerWritable(f.Mode(), false))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract error %s: %w", name, err)
	}
	return out.Close()
}
