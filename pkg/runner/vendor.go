// pkg/runner/vendor.go - the AviUtl ExEdit2 output plugin setup tool.

package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aviutl2catalog/catalog/pkg/logging"
)

// CorePackageID is the host application package. In portable mode the setup
// tool needs it installed first.
const CorePackageID = "Kenkun.AviUtlExEdit2"

// ReadyMarker is printed by the setup tool into its log control once it has
// finished.
const ReadyMarker = "を使用する準備が完了しました。"

// VendorWindowClass is the dialog class of the setup tool.
const VendorWindowClass = "AUO_SETUP"

const (
	defaultVendorTimeout = 30 * time.Second
	vendorPoll           = 500 * time.Millisecond
)

// ErrVendorUnsupported is returned on platforms without the setup tool.
var ErrVendorUnsupported = errors.New("auo_setup can only be run on Windows")

// VendorOptions describe the host layout the setup tool is pointed at.
type VendorOptions struct {
	PortableMode  bool
	AviUtl2Root   string
	CoreInstalled bool          // CorePackageID has an install-state entry
	WindowTimeout time.Duration // wait for the dialog to appear
}

// VendorArgs builds the setup tool command line.
func VendorArgs(opts VendorOptions) ([]string, error) {
	if !opts.PortableMode {
		return []string{"-aviutldir-default"}, nil
	}
	if !opts.CoreInstalled {
		return nil, fmt.Errorf("%s is not installed. Install it and run again", CorePackageID)
	}
	root := strings.TrimSpace(opts.AviUtl2Root)
	if root == "" {
		return nil, fmt.Errorf("the AviUtl2 root folder is not configured")
	}
	return []string{"-aviutldir", root}, nil
}

// RunVendorSetup runs the setup tool at exe, closes its dialog once the tool
// reports that it is done, and waits for it to exit.
func RunVendorSetup(ctx context.Context, exe string, opts VendorOptions) error {
	abs, err := canonical(exe)
	if err != nil {
		return &ProcessExitError{Path: exe, ExitCode: -1, Err: err}
	}
	args, err := VendorArgs(opts)
	if err != nil {
		logging.Error("auo_setup precondition failed", "error", err)
		return &ProcessExitError{Path: abs, ExitCode: -1, Err: err}
	}
	timeout := opts.WindowTimeout
	if timeout <= 0 {
		timeout = defaultVendorTimeout
	}
	logging.Info("Running auo_setup", "exe", abs, "args", args, "portable", opts.PortableMode)

	code, err := superviseVendor(ctx, abs, args, timeout)
	if err != nil || code != 0 {
		return &ProcessExitError{Path: abs, Args: args, ExitCode: code, Err: err}
	}
	return nil
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// textTracker scans the growing log text of the setup dialog. Only the part
// added since the last look (plus some overlap) is searched. Text shorter
// than what was seen means the control was cleared, and is searched whole.
type textTracker struct {
	seen int
}

const markerOverlap = 128

func (t *textTracker) check(text []uint16, decode func([]uint16) string) bool {
	if len(text) < t.seen {
		t.seen = 0
	}
	start := t.seen - markerOverlap
	if start < 0 {
		start = 0
	}
	t.seen = len(text)
	return strings.Contains(decode(text[start:]), ReadyMarker)
}
