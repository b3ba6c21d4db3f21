//go:build !windows

package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

var errElevationUnsupported = errors.New("elevation is only supported on Windows")

func start(ctx context.Context, dir, exe string, args []string, elevate bool) (int, string, error) {
	if elevate {
		return -1, "", errElevationUnsupported
	}
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = dir
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
