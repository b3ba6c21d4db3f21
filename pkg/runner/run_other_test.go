//go:build !windows

package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevationUnsupportedOffWindows(t *testing.T) {
	skipOnWindows(t)
	err := Run(context.Background(), "/bin/sh", nil, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errElevationUnsupported)
}
