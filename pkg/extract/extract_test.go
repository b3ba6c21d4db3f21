package extract

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

type zipEntry struct {
	name    string
	body    string
	rawName bool
}

func writeZip(t *testing.T, path string, entries []zipEntry) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		if e.rawName {
			hdr.NonUTF8 = true
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestZipExtractsTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plugin.zip")
	writeZip(t, src, []zipEntry{
		{name: "plugin/", body: ""},
		{name: "plugin/a.auo", body: "AUO"},
		{name: "plugin/lang/ja.ini", body: "JA"},
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, Archive(KindZip, src, dest))

	data, err := os.ReadFile(filepath.Join(dest, "plugin", "a.auo"))
	require.NoError(t, err)
	assert.Equal(t, "AUO", string(data))
	assert.FileExists(t, filepath.Join(dest, "plugin", "lang", "ja.ini"))
}

func TestZipDecodesShiftJISNames(t *testing.T) {
	sjis, err := japanese.ShiftJIS.NewEncoder().String("説明書.txt")
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "sjis.zip")
	writeZip(t, src, []zipEntry{{name: sjis, body: "読んでね", rawName: true}})

	dest := filepath.Join(dir, "out")
	require.NoError(t, Zip(src, dest))
	assert.FileExists(t, filepath.Join(dest, "説明書.txt"))
}

func TestZipRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "evil.zip")
	writeZip(t, src, []zipEntry{{name: "../escape.txt", body: "x"}})

	err := Zip(src, filepath.Join(dir, "out"))
	var ee *ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, KindZip, ee.Kind)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestZipMissingArchive(t *testing.T) {
	err := Archive(KindZip, filepath.Join(t.TempDir(), "nope.zip"), t.TempDir())
	var ee *ExtractError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, err.Error(), "zip open error")
}

func TestArchiveUnknownKind(t *testing.T) {
	err := Archive(Kind("rar"), "a", "b")
	var ee *ExtractError
	require.ErrorAs(t, err, &ee)
}

// storedSevenZip builds a minimal 7z archive holding one file stored with the
// copy method. Sizes must stay below 0x80 so every number fits in one byte.
func storedSevenZip(name string, content []byte) []byte {
	var name16 bytes.Buffer
	for _, r := range utf16.Encode([]rune(name)) {
		binary.Write(&name16, binary.LittleEndian, r)
	}
	name16.Write([]byte{0, 0})

	var hdr bytes.Buffer
	hdr.Write([]byte{0x01, 0x04})                                     // header, main streams info
	hdr.Write([]byte{0x06, 0x00, 0x01, 0x09, byte(len(content)), 0x00}) // pack info
	hdr.Write([]byte{0x07, 0x0B, 0x01, 0x00, 0x01, 0x01, 0x00})       // one folder, one copy coder
	hdr.Write([]byte{0x0C, byte(len(content)), 0x00})                 // unpack size
	hdr.Write([]byte{0x08, 0x0A, 0x01})                               // substreams with crc
	binary.Write(&hdr, binary.LittleEndian, crc32.ChecksumIEEE(content))
	hdr.Write([]byte{0x00, 0x00})
	hdr.Write([]byte{0x05, 0x01, 0x11, byte(1 + name16.Len()), 0x00}) // files info, names
	hdr.Write(name16.Bytes())
	hdr.Write([]byte{0x00, 0x00})

	var start bytes.Buffer
	binary.Write(&start, binary.LittleEndian, uint64(len(content)))
	binary.Write(&start, binary.LittleEndian, uint64(hdr.Len()))
	binary.Write(&start, binary.LittleEndian, crc32.ChecksumIEEE(hdr.Bytes()))

	var out bytes.Buffer
	out.Write(sevenZipSignature)
	out.Write([]byte{0x00, 0x04})
	binary.Write(&out, binary.LittleEndian, crc32.ChecksumIEEE(start.Bytes()))
	out.Write(start.Bytes())
	out.Write(content)
	out.Write(hdr.Bytes())
	return out.Bytes()
}

func TestSevenZipSFX(t *testing.T) {
	stub := bytes.Repeat([]byte("MZ-stub-"), 4096)
	// a stray signature inside the stub must not stop the scan
	stub = append(stub, sevenZipSignature...)
	stub = append(stub, []byte("more stub bytes")...)
	archive := storedSevenZip("readme.txt", []byte("hello from sfx"))

	dir := t.TempDir()
	src := filepath.Join(dir, "setup.exe")
	require.NoError(t, os.WriteFile(src, append(stub, archive...), 0644))

	dest := filepath.Join(dir, "out")
	require.NoError(t, Archive(KindSevenZipSFX, src, dest))
	data, err := os.ReadFile(filepath.Join(dest, "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello from sfx", string(data))
}

func TestSevenZipSFXWithoutSignature(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "plain.exe")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{0x90}, 4096), 0644))

	err := SevenZipSFX(src, filepath.Join(dir, "out"))
	var ee *ExtractError
	require.ErrorAs(t, err, &ee)
	assert.ErrorIs(t, err, ErrNoSignature)
}

func TestFindSignatureAcrossChunks(t *testing.T) {
	data := make([]byte, scanChunk+10)
	copy(data[scanChunk-3:], sevenZipSignature)
	off, err := findSignature(bytes.NewReader(data), int64(len(data)), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(scanChunk-3), off)
}

func TestSafeJoin(t *testing.T) {
	dest := t.TempDir()
	got, err := safeJoin(dest, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "a", "b.txt"), got)

	for _, bad := range []string{"../x", `..\x`, "a/../../x"} {
		_, err := safeJoin(dest, bad)
		assert.Error(t, err, bad)
	}
}
