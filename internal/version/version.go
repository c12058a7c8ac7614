// Package version carries the build identity stamped in via ldflags.
package version

var (
	// Version is the build version (git tag or "dev").
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)
