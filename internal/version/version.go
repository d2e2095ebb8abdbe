// Package version reports the uiprobe build. The variables are set with
// -ldflags "-X github.com/qa-tooling/uiprobe/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the release tag or "dev".
	Version = "dev"

	// GitCommit is the short commit SHA
	GitCommit = "unknown"

	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetInfo returns the build info, falling back to the module version and
// VCS stamp recorded by the Go toolchain for `go install` builds.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" && len(s.Value) >= 7 {
				info.GitCommit = s.Value[:7]
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

// String returns "v1.2.0 (abc1234)".
func String() string {
	i := GetInfo()
	return fmt.Sprintf("%s (%s)", i.Version, i.GitCommit)
}

// Full returns the version with build date and Go version.
func Full() string {
	i := GetInfo()
	return fmt.Sprintf("%s (%s) built %s with %s", i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}

// UserAgent is sent with preflight requests.
func UserAgent() string {
	return "uiprobe/" + GetInfo().Version
}
