//go:build !windows

package runner

import (
	"context"
	"time"
)

func superviseVendor(context.Context, string, []string, time.Duration) (int, error) {
	return -1, ErrVendorUnsupported
}
