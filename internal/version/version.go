// Package version exposes build metadata of the confhub binaries
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"go.uber.org/zap"
)

// Set with -ldflags "-X confhub/internal/version.Version=..." at build time
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

// Info represents version information
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns version information. Values not set at link time are
// taken from the VCS stamp the go tool embeds in the binary.
func GetInfo() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withBuildSettings(info, bi.Settings)
	}
	return info
}

func withBuildSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// Short returns the version with an abbreviated commit, e.g. "1.2.0 (3f2a9c1)"
func (i Info) Short() string {
	commit := i.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	switch {
	case commit == "":
		return i.Version
	case i.Modified:
		return fmt.Sprintf("%s (%s, modified)", i.Version, commit)
	default:
		return fmt.Sprintf("%s (%s)", i.Version, commit)
	}
}

// String returns a string representation of version information
func (i Info) String() string {
	return fmt.Sprintf("confhub %s\nbuilt %s with %s for %s",
		i.Short(), orUnknown(i.BuildDate), i.GoVersion, i.Platform)
}

// Fields returns the version as structured log fields
func (i Info) Fields() []zap.Field {
	return []zap.Field{
		zap.String("version", i.Version),
		zap.String("commit", i.GitCommit),
		zap.String("build_date", i.BuildDate),
		zap.String("go_version", i.GoVersion),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
