// pkg/logging/helpers.go - helpers for installer lifecycle logging

package logging

import (
	"fmt"
	"time"
)

// LogInstallStart logs the start of an installer run.
func LogInstallStart(packageID, version string, steps int) {
	Info("[installer "+packageID+"] start", "version", version, "steps", steps)
}

// LogInstallComplete logs successful completion of an installer run.
func LogInstallComplete(packageID, version string, duration time.Duration) {
	Info("[installer "+packageID+"] completed", "version", version, "duration", duration.Round(time.Millisecond))
}

// LogUninstallStart logs the start of an uninstaller run.
func LogUninstallStart(packageID string, steps int) {
	Info("[uninstall "+packageID+"] start", "steps", steps)
}

// LogUninstallComplete logs successful completion of an uninstaller run.
func LogUninstallComplete(packageID string, duration time.Duration) {
	Info("[uninstall "+packageID+"] completed", "duration", duration.Round(time.Millisecond))
}

// LogStepFailed logs a wrapped step error. The %+v verb prints any stack
// attached by github.com/pkg/errors.
func LogStepFailed(err error) {
	Error(fmt.Sprintf("%+v", err))
}
