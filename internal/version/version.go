package version

import "fmt"

// name identifies the binary in logs and HTTP requests.
const name = "auto-updater"

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return fmt.Sprintf("%s version: %s, commit: %s, built at: %s", name, Version, Commit, BuildTime)
}

// UserAgent is sent with every request to release hosts, e.g. "auto-updater/0.1.0 (none)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s)", name, Version, Commit)
}
