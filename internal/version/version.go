// Package version identifies the udpsearch build.
//
// The values appear in 'udpsearch version', in the TUI header and in the
// "agent" TXT record a responder publishes over mDNS, so browsing clients
// can tell which build answered.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Release builds set Version and Commit with ldflags:
//
//	go build -ldflags="-X github.com/muurk/udpsearch/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/udpsearch/internal/version.Commit=abc123"
//
// Otherwise they are derived from the module and VCS build info.
var (
	// Version is the semantic version, or dev-<date> for untagged builds
	Version = ""
	// Commit is the short git revision, suffixed with -dirty for modified trees
	Commit = ""
	// GoVersion is the toolchain the binary was built with
	GoVersion = runtime.Version()
)

const shortCommitLen = 7

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			v, c := fromBuildInfo(info)
			if Version == "" {
				Version = v
			}
			if Commit == "" {
				Commit = c
			}
		}
	}

	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo derives version and commit from build info. Either may be
// empty when the binary carries no module version or VCS stamp.
func fromBuildInfo(info *debug.BuildInfo) (version, commit string) {
	if v := info.Main.Version; v != "" && v != "(devel)" {
		version = v
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}

	if rev := settings["vcs.revision"]; rev != "" {
		if len(rev) > shortCommitLen {
			rev = rev[:shortCommitLen]
		}
		commit = rev
		if settings["vcs.modified"] == "true" {
			commit += "-dirty"
		}
	}

	// Untagged VCS builds are named after the commit date
	if version == "" {
		if t, err := time.Parse(time.RFC3339, settings["vcs.time"]); err == nil {
			version = "dev-" + t.Format("20060102")
		}
	}

	return version, commit
}

// Full returns the version with its commit, e.g. "v1.2.3 (commit: abc1234)"
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// Platform returns the OS/architecture pair the binary targets
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// UserAgent is published as the responder's "agent" TXT record
func UserAgent() string {
	return fmt.Sprintf("udpsearch/%s (%s)", Version, Platform())
}
