// Package version carries build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the machine-readable form of the build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version,omitempty"`
}

// Current returns the injected metadata. Builds without ldflags, such as
// `go install`, fall back to the module version and VCS stamp the toolchain
// recorded.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = build.GoVersion
	if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch {
		case setting.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = setting.Value
		case setting.Key == "vcs.time" && info.Date == "unknown":
			info.Date = setting.Value
		}
	}
	return info
}

func String() string {
	info := Current()
	return fmt.Sprintf("%s (%s, %s)", info.Version, info.Commit, info.Date)
}
