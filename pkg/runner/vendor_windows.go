//go:build windows

package runner

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"
	"unsafe"

	"github.com/gonutz/w32"
	"golang.org/x/sys/windows"

	"github.com/aviutl2catalog/catalog/pkg/logging"
)

const vendorEditID = 100

func superviseVendor(ctx context.Context, exe string, args []string, timeout time.Duration) (int, error) {
	cmd := exec.CommandContext(ctx, exe, args...)
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start %s: %w", exe, err)
	}
	var waitErr error
	exited := make(chan struct{})
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	dialog := waitForWindow(ctx, VendorWindowClass, uint32(cmd.Process.Pid), timeout, exited)
	if dialog == 0 {
		select {
		case <-exited:
			// exited before showing its dialog
			return exitCode(cmd, waitErr)
		default:
		}
		_ = cmd.Process.Kill()
		<-exited
		return -1, fmt.Errorf("timed out waiting for %s window", VendorWindowClass)
	}
	edit := w32.GetDlgItem(w32.HWND(dialog), vendorEditID)
	if edit == 0 {
		_ = cmd.Process.Kill()
		<-exited
		return -1, fmt.Errorf("EDIT control not found in %s window", VendorWindowClass)
	}

	var tracker textTracker
	closeSent := false
	ticker := time.NewTicker(vendorPoll)
	defer ticker.Stop()
	for {
		if !closeSent && tracker.check(editText(edit), windows.UTF16ToString) {
			logging.Debug("auo_setup reported completion, closing dialog")
			w32.PostMessage(w32.HWND(dialog), w32.WM_CLOSE, 0, 0)
			closeSent = true
		}
		select {
		case <-exited:
			return exitCode(cmd, waitErr)
		case <-ticker.C:
		}
	}
}

func exitCode(cmd *exec.Cmd, err error) (int, error) {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}

func editText(edit w32.HWND) []uint16 {
	n := int(w32.SendMessage(edit, w32.WM_GETTEXTLENGTH, 0, 0))
	if n <= 0 {
		return nil
	}
	buf := make([]uint16, n+1)
	w32.SendMessage(edit, w32.WM_GETTEXT, uintptr(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	for i, c := range buf {
		if c == 0 {
			return buf[:i]
		}
	}
	return buf
}

// waitForWindow scans top-level windows until one of class belongs to pid.
func waitForWindow(ctx context.Context, class string, pid uint32, timeout time.Duration, exited <-chan struct{}) windows.HWND {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if hwnd := findWindow(class, pid); hwnd != 0 {
			return hwnd
		}
		select {
		case <-ctx.Done():
			return 0
		case <-exited:
			return 0
		case <-time.After(300 * time.Millisecond):
		}
	}
	return 0
}

func findWindow(class string, pid uint32) windows.HWND {
	var found windows.HWND
	cb := syscall.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		buf := make([]uint16, 256)
		n, err := windows.GetClassName(hwnd, &buf[0], int32(len(buf)))
		if err != nil || n == 0 || windows.UTF16ToString(buf[:n]) != class {
			return 1
		}
		var owner uint32
		if _, err := windows.GetWindowThreadProcessId(hwnd, &owner); err != nil || owner != pid {
			return 1
		}
		found = hwnd
		return 0
	})
	_ = windows.EnumWindows(cb, nil)
	return found
}
