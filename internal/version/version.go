// Package version reports build metadata injected with -ldflags, falling
// back to the module build info for go install builds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	Version   = "dev"
	Built     = ""
	GitCommit = ""
)

type VersionInfo struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
	GoVersion string `json:"go_version"`
}

func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		Built:     Built,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
	if build, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
			info.Version = build.Main.Version
		}
		for _, setting := range build.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = setting.Value
				}
			case "vcs.time":
				if info.Built == "" {
					info.Built = setting.Value
				}
			}
		}
	}
	info.Major, info.Minor, info.Patch = parseSemver(info.Version)
	return info
}

// String is the one-line form printed by the version command.
func (info VersionInfo) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "foldercache %s (%s)", info.Version, info.GoVersion)
	if info.GitCommit != "" {
		commit := info.GitCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Fprintf(&builder, " commit %s", commit)
	}
	if info.Built != "" {
		fmt.Fprintf(&builder, " built %s", info.Built)
	}
	return builder.String()
}

// parseSemver reads "v1.2.3", "1.2" or "1.2.3-rc.1". Missing or malformed
// parts are zero.
func parseSemver(value string) (major, minor, patch int) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "v")
	if cut := strings.IndexAny(value, "-+"); cut >= 0 {
		value = value[:cut]
	}
	parts := strings.SplitN(value, ".", 3)
	numbers := make([]int, 3)
	for i, part := range parts {
		if _, err := fmt.Sscanf(part, "%d", &numbers[i]); err != nil {
			return 0, 0, 0
		}
	}
	return numbers[0], numbers[1], numbers[2]
}
