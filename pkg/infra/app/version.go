package app

import (
	"github.com/kart-io/version"
)

// BuildInfo is the build metadata reported by GET /version.
type BuildInfo struct {
	GitVersion   string `json:"git_version"`
	GitCommit    string `json:"git_commit,omitempty"`
	GitTreeState string `json:"git_tree_state,omitempty"`
	BuildDate    string `json:"build_date,omitempty"`
	GoVersion    string `json:"go_version,omitempty"`
	Platform     string `json:"platform,omitempty"`
}

// GetVersion returns the git version stamped at build time, or "dev" for
// unstamped builds.
func GetVersion() string {
	if v := version.Get().GitVersion; v != "" {
		return v
	}
	return "dev"
}

// Build returns the full build metadata.
func Build() BuildInfo {
	info := version.Get()
	return BuildInfo{
		GitVersion:   GetVersion(),
		GitCommit:    info.GitCommit,
		GitTreeState: info.GitTreeState,
		BuildDate:    info.BuildDate,
		GoVersion:    info.GoVersion,
		Platform:     info.Platform,
	}
}
