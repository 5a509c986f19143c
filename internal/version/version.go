// Package version reports the agora release.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Commit is the source revision, set at build time with
// -ldflags "-X github.com/ShayCichocki/agora/internal/version.Commit=<sha>".
var Commit string

// Get returns the current version, with whitespace trimmed
func Get() string {
	return strings.TrimSpace(versionContent)
}

// String returns the version followed by the short commit, when known.
func String() string {
	v := Get()
	if c := strings.TrimSpace(Commit); c != "" {
		if len(c) > 12 {
			c = c[:12]
		}
		v += " (" + c + ")"
	}
	return v
}
