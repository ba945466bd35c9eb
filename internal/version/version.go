package version

// Package version holds build-time metadata injected via -ldflags, e.g.
//   -X gwconsole/internal/version.Version=v1.2.0 -X gwconsole/internal/version.Commit=abc123

var (
	// Version is a SemVer tag like v1.2.3 for releases. Empty for dev builds.
	Version = ""
	// Commit is the short git SHA for the build.
	Commit = ""
	// Date is the UTC build timestamp in RFC3339 format.
	Date = ""
	// Dirty is "dirty" when the working tree had uncommitted changes, otherwise "clean".
	Dirty = ""
)

// Info is the payload served on /version and printed by `gwctl version`.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

// String returns "v1.2.3" for releases, "dev-<sha>" (with a trailing "*" when
// dirty) for commit builds, or plain "dev".
func String() string {
	if Version != "" {
		return Version
	}
	if Commit != "" {
		suffix := Commit
		if Dirty == "dirty" {
			suffix += "*"
		}
		return "dev-" + suffix
	}
	return "dev"
}

// Current returns the build metadata as an Info value.
func Current() Info {
	return Info{Version: String(), Commit: Commit, Date: Date}
}
