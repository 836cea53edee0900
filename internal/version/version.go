// Package version exposes build-time version information for the lexrag
// binary. The variables are overridden at link time via -ldflags.
package version

import "fmt"

// Version is the semantic version of the build, set via
// -ldflags "-X github.com/casefile-ai/lexrag/internal/version.Version=v0.3.0".
var Version = "dev"

// Commit is the short git commit hash of the build.
var Commit = "unknown"

// Date is the UTC build timestamp.
var Date = "unknown"

// String returns the full human-readable version line.
func String() string {
	return fmt.Sprintf("lexrag %s (commit %s, built %s)", Version, Commit, Date)
}
