// Package version holds build metadata for agentreflect.
//
// Release builds set the variables with -ldflags, e.g.
//
//	-X agentreflect/internal/version.Version=0.4.1 -X agentreflect/internal/version.Commit=$(git rev-parse HEAD)
package version

import "fmt"

var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

const shortCommit = 7

// Short returns the version, suffixed with the abbreviated commit when a
// full hash was stamped in.
func Short() string {
	if Commit == "unknown" || len(Commit) <= shortCommit {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit[:shortCommit])
}

// UserAgent identifies agentreflect to HTTP services it calls.
func UserAgent() string {
	return "agentreflect/" + Version
}

// Full is the multi-line text printed by `agentreflect version`.
func Full() string {
	return fmt.Sprintf("agentreflect version %s\nCommit: %s\nBuilt: %s", Version, Commit, BuildDate)
}
