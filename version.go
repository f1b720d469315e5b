package antrian

import (
	"fmt"
	"runtime"
)

// BuildInfo identifies the build of the library or the antrian binary.
type BuildInfo struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
}

var build = BuildInfo{
	Version:   "v0.3.0",
	Commit:    "unknown",
	Date:      "unknown",
	GoVersion: runtime.Version(),
}

// SetBuildInfo records the values a binary received through -ldflags.
// Empty arguments keep the current value. Call it once at startup.
func SetBuildInfo(version, commit, date string) {
	if version != "" {
		build.Version = version
	}
	if commit != "" {
		build.Commit = commit
	}
	if date != "" {
		build.Date = date
	}
}

// Build returns the current build information.
func Build() BuildInfo {
	return build
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("antrian %s (commit: %s, built: %s, %s)", b.Version, b.Commit, b.Date, b.GoVersion)
}

// Fields lists the build information as name/value pairs in display order.
func (b BuildInfo) Fields() [][2]string {
	return [][2]string{
		{"version", b.Version},
		{"commit", b.Commit},
		{"built", b.Date},
		{"go", b.GoVersion},
	}
}
