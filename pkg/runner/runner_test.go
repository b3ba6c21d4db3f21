package runner

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
}

func TestRunSuccess(t *testing.T) {
	skipOnWindows(t)
	require.NoError(t, Run(context.Background(), "/bin/sh", []string{"-c", "exit 0"}, false))
}

func TestRunNonZeroExit(t *testing.T) {
	skipOnWindows(t)
	err := Run(context.Background(), "/bin/sh", []string{"-c", "echo broken >&2; exit 3"}, false)

	var pe *ProcessExitError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.ExitCode)
	assert.Equal(t, "broken", pe.Stderr)
	assert.Contains(t, err.Error(), "exit=3")
	assert.Contains(t, err.Error(), `"-c"`)
}

func TestRunMissingExecutable(t *testing.T) {
	err := Run(context.Background(), "/no/such/program", nil, false)
	var pe *ProcessExitError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, -1, pe.ExitCode)
	assert.NotNil(t, pe.Unwrap())
}

func TestRunInUsesWorkingDirectory(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	require.NoError(t, RunIn(context.Background(), dir, "/bin/sh", []string{"-c", "touch marker"}, false))
	assert.FileExists(t, dir+"/marker")
}

func TestTruncateStderr(t *testing.T) {
	long := strings.Repeat("あ", stderrLimit+20)
	assert.Equal(t, stderrLimit, len([]rune(truncate(long, stderrLimit))))
	assert.Equal(t, "short", truncate("  short \n", stderrLimit))
}

func TestVendorArgs(t *testing.T) {
	args, err := VendorArgs(VendorOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"-aviutldir-default"}, args)

	args, err = VendorArgs(VendorOptions{PortableMode: true, CoreInstalled: true, AviUtl2Root: `D:\AviUtl2`})
	require.NoError(t, err)
	assert.Equal(t, []string{"-aviutldir", `D:\AviUtl2`}, args)

	_, err = VendorArgs(VendorOptions{PortableMode: true, AviUtl2Root: `D:\AviUtl2`})
	assert.ErrorContains(t, err, CorePackageID)

	_, err = VendorArgs(VendorOptions{PortableMode: true, CoreInstalled: true})
	assert.ErrorContains(t, err, "root folder")
}

func decode(u []uint16) string {
	r := make([]rune, len(u))
	for i, c := range u {
		r[i] = rune(c)
	}
	return string(r)
}

func encode(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		out = append(out, uint16(r))
	}
	return out
}

func TestTextTrackerFindsMarkerInNewText(t *testing.T) {
	var tr textTracker
	assert.False(t, tr.check(encode("installing..."), decode))
	assert.True(t, tr.check(encode("installing...\r\nx264guiEx"+ReadyMarker), decode))
	assert.False(t, tr.check(encode("shrunk"), decode))
}

func TestTextTrackerRescansAfterClear(t *testing.T) {
	var tr textTracker
	assert.False(t, tr.check(encode(strings.Repeat("progress line\r\n", 40)), decode))
	assert.True(t, tr.check(encode(ReadyMarker), decode), "marker after the control was cleared")
}

func TestRunVendorSetupMissingExe(t *testing.T) {
	err := RunVendorSetup(context.Background(), "/no/such/auo_setup2.exe", VendorOptions{})
	var pe *ProcessExitError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, -1, pe.ExitCode)
}
