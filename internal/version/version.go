// Package version exposes build identity for both composition roots. The
// values are populated via -ldflags at release build time; Dev/unset is
// the default when running `go run` or an unflagged build.
package version

import "runtime/debug"

var (
	// Version is the service release tag, set via -ldflags "-X
	// github.com/nrod/cancelwatch/internal/version.Version=...".
	Version = "dev"

	// Commit is the source revision, set the same way.
	Commit = "unknown"

	// BuildTime is an RFC3339 timestamp, set the same way.
	BuildTime = "unknown"
)

// String renders a one-line identity string for --version flags and
// startup log lines.
func String() string {
	return Version + " (" + Commit + ", built " + BuildTime + ")"
}

// init falls back to the Go module's embedded VCS metadata when no
// -ldflags were supplied, so a plain `go build` still reports something
// useful instead of the bare "dev" default.
func init() {
	if Commit != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			Commit = s.Value
		case "vcs.time":
			BuildTime = s.Value
		}
	}
}
