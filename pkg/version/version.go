// Package version reports build information for amankb.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is injected with -ldflags "-X github.com/Aman-CERP/amankb/pkg/version.Version=...".
var Version = "dev"

// Build metadata injected the same way.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// BuildInfo is version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// String returns a one-line version banner.
func String() string {
	info := GetInfo()
	return fmt.Sprintf("amankb %s (commit: %s, built: %s, %s, %s)",
		info.Version, info.Commit, info.Date, info.GoVersion, info.Platform)
}

// GetInfo returns the build information. A binary installed with go
// install reports its module version and VCS revision when no ldflags
// were set.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "unknown" && len(s.Value) >= 7:
			info.Commit = s.Value[:7]
		case s.Key == "vcs.time" && info.Date == "unknown":
			info.Date = s.Value
		}
	}
	return info
}
