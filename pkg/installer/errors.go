// pkg/installer/errors.go - installer run failures.

package installer

import (
	"fmt"

	"github.com/aviutl2catalog/catalog/pkg/catalog"
)

// StepError annotates a failed step with where in the run it happened.
type StepError struct {
	Mode      string // "installer" or "uninstall"
	PackageID string
	Index     int // 1-based
	Total     int
	Action    catalog.Action
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("[%s %s] step %d/%d action=%s failed: %v", e.Mode, e.PackageID, e.Index, e.Total, e.Action, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// UnsupportedActionError is returned for a step kind this build cannot run.
type UnsupportedActionError struct {
	Action catalog.Action
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action: %s", e.Action)
}

// ZeroMatchCopyError is returned when a copy step matched no files.
type ZeroMatchCopyError struct {
	From string
	To   string
}

func (e *ZeroMatchCopyError) Error() string {
	return fmt.Sprintf("copy matched 0 files (from=%s to=%s)", e.From, e.To)
}

// RelativePathError is returned when a path that must be absolute is not.
type RelativePathError struct {
	Action catalog.Action
	Path   string
}

func (e *RelativePathError) Error() string {
	return fmt.Sprintf("%s requires an absolute path, got %q", e.Action, e.Path)
}
