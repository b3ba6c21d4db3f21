// pkg/version/version.go - build information for the catalog client.

package version

import (
	"fmt"
	"strings"
)

// These values are private which ensures they can only be set with the build flags.
var (
	version   = "0.0.0-dev"
	revision  = "unknown"
	buildDate = "unknown"
	appName   = "catalogctl"
)

// Info is a structure with version build information about the current application.
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	BuildDate string `json:"build_date"`
}

// Version returns a structure with the current version information.
func Version() Info {
	return Info{
		Version:   version,
		Revision:  revision,
		BuildDate: buildDate,
	}
}

// ClientVersion is the value reported as client_version in telemetry events.
func ClientVersion() string {
	return strings.TrimPrefix(version, "v")
}

// Print outputs the application name and version string.
func Print() {
	fmt.Printf("%s %s\n", appName, Version().Version)
}

// PrintFull prints the application name and detailed version information.
func PrintFull() {
	v := Version()
	fmt.Printf("%s %s\n", appName, v.Version)
	fmt.Printf("  revision: \t%s\n", v.Revision)
	fmt.Printf("  build date: \t%s\n", v.BuildDate)
}
