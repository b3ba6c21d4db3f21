// pkg/runner/runner.go - hidden, blocking execution of installer programs.

package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aviutl2catalog/catalog/pkg/logging"
)

const stderrLimit = 500

// ProcessExitError is returned when a program could not be started or exited
// with a non-zero code.
type ProcessExitError struct {
	Path     string
	Args     []string
	Elevate  bool
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessExitError) Error() string {
	args, _ := json.Marshal(e.Args)
	msg := fmt.Sprintf("process failed (exe=%s, args=%s, elevate=%t) exit=%d, stderr=%s",
		e.Path, args, e.Elevate, e.ExitCode, e.Stderr)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessExitError) Unwrap() error { return e.Err }

// Run starts exe with args, hidden, and blocks until it exits.
func Run(ctx context.Context, exe string, args []string, elevate bool) error {
	return RunIn(ctx, "", exe, args, elevate)
}

// RunIn is Run with a working directory. An elevated run goes through the
// UAC consent prompt; stderr is not captured in that case.
func RunIn(ctx context.Context, dir, exe string, args []string, elevate bool) error {
	if args == nil {
		args = []string{}
	}
	logging.Debug("Running program", "exe", exe, "args", args, "elevate", elevate, "dir", dir)

	code, stderr, err := start(ctx, dir, exe, args, elevate)
	if err != nil || code != 0 {
		return &ProcessExitError{
			Path:     exe,
			Args:     args,
			Elevate:  elevate,
			ExitCode: code,
			Stderr:   truncate(stderr, stderrLimit),
			Err:      err,
		}
	}
	logging.Debug("Program finished", "exe", exe)
	return nil
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
