package version

import "fmt"

var (
	// Version is the release of the updater itself. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("onec-updater %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// UserAgent is sent with every request to the update gateway.
func UserAgent() string {
	return "onec-updater/" + Version
}
