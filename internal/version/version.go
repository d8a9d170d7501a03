// Package version carries build metadata stamped in at link time.
package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version = "0.1.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns just the version string.
func Short() string {
	return Version
}

// Info returns the full version line.
func Info() string {
	return fmt.Sprintf("wispwatch %s (commit %s, built %s)", Version, Commit, Date)
}
