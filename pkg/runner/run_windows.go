//go:build windows

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modshell32         = windows.NewLazySystemDLL("shell32.dll")
	procShellExecuteEx = modshell32.NewProc("ShellExecuteExW")
)

const (
	seeMaskNoCloseProcess = 0x00000040
	seeMaskNoAsync        = 0x00000100
	seeMaskFlagNoUI       = 0x00000400
	swHide                = 0
)

type shellExecuteInfo struct {
	cbSize         uint32
	fMask          uint32
	hwnd           windows.Handle
	lpVerb         *uint16
	lpFile         *uint16
	lpParameters   *uint16
	lpDirectory    *uint16
	nShow          int32
	hInstApp       windows.Handle
	lpIDList       uintptr
	lpClass        *uint16
	hkeyClass      windows.Handle
	dwHotKey       uint32
	hIconOrMonitor windows.Handle
	hProcess       windows.Handle
}

func start(ctx context.Context, dir, exe string, args []string, elevate bool) (int, string, error) {
	if elevate {
		return startElevated(ctx, dir, exe, args)
	}

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stderr.String(), nil
	}
	if err != nil {
		return -1, stderr.String(), err
	}
	return 0, stderr.String(), nil
}

// startElevated runs exe through ShellExecuteExW with the runas verb and
// waits for it.
func startElevated(ctx context.Context, dir, exe string, args []string) (int, string, error) {
	verb, _ := windows.UTF16PtrFromString("runas")
	file, err := windows.UTF16PtrFromString(exe)
	if err != nil {
		return -1, "", err
	}
	info := &shellExecuteInfo{
		fMask:  seeMaskNoCloseProcess | seeMaskNoAsync | seeMaskFlagNoUI,
		lpVerb: verb,
		lpFile: file,
		nShow:  swHide,
	}
	if len(args) > 0 {
		params, err := windows.UTF16PtrFromString(joinArgs(args))
		if err != nil {
			return -1, "", err
		}
		info.lpParameters = params
	}
	if dir != "" {
		wd, err := windows.UTF16PtrFromString(dir)
		if err != nil {
			return -1, "", err
		}
		info.lpDirectory = wd
	}
	info.cbSize = uint32(unsafe.Sizeof(*info))

	ret, _, callErr := procShellExecuteEx.Call(uintptr(unsafe.Pointer(info)))
	if ret == 0 {
		return -1, "", os.NewSyscallError("ShellExecuteExW", callErr)
	}
	if info.hProcess == 0 {
		return -1, "", fmt.Errorf("ShellExecuteExW returned no process handle")
	}
	defer windows.CloseHandle(info.hProcess)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			windows.TerminateProcess(info.hProcess, 1)
		case <-done:
		}
	}()

	event, err := windows.WaitForSingleObject(info.hProcess, windows.INFINITE)
	if err != nil {
		return -1, "", os.NewSyscallError("WaitForSingleObject", err)
	}
	if event != windows.WAIT_OBJECT_0 {
		return -1, "", fmt.Errorf("unexpected result from WaitForSingleObject: %d", event)
	}
	var code uint32
	if err := windows.GetExitCodeProcess(info.hProcess, &code); err != nil {
		return -1, "", err
	}
	return int(code), "", nil
}

// joinArgs quotes arguments the way CommandLineToArgvW splits them.
func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = windows.EscapeArg(a)
	}
	return strings.Join(quoted, " ")
}
