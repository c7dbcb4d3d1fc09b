// Package version exposes the build identity stamped into the binaries.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time via -ldflags "-X .../pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = ""
)

// String returns a human-readable version line. When no commit was
// stamped in, the VCS revision from build info is used if available.
func String() string {
	commit := Commit
	if commit == "" {
		commit = vcsRevision()
	}
	if commit == "" {
		return Version
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s (%s)", Version, commit)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
