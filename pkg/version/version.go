// Package version provides build metadata for the webscope binary.
package version

import (
	"fmt"
	"runtime"
)

// These variables are typically injected at build time using -ldflags
var (
	// Version holds the current version of webscope.
	Version = "dev"
	// Commit holds the commit webscope was built from.
	Commit = "none"
	// BuildDate holds the build date of webscope.
	BuildDate = "unknown"
)

// Info is the structured form printed by the version command.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns version information for the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns a one line description such as the User-Agent suffix.
func (i Info) String() string {
	return fmt.Sprintf("webscope %s (commit: %s, date: %s)", i.Version, i.Commit, i.BuildDate)
}
