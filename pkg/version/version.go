// Package version holds build information for the triad binary, injected
// at link time.
package version

import "fmt"

// Build information, set via ldflags:
//
//	go build -ldflags "-X triad/pkg/version.Version=v1.2.3 -X triad/pkg/version.Commit=$(git rev-parse HEAD)"
//
//nolint:gochecknoglobals // ldflags injection needs package-level vars
var (
	// Version is the semantic version, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("triad %s (commit %s, built %s)", Version, Commit, Date)
}
