// Package version reports the build version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// Commit is set at build time with -ldflags "-X .../internal/version.Commit=<sha>".
var Commit string

// Get returns the release version, with the commit appended when known.
func Get() string {
	v := strings.TrimSpace(versionContent)
	if Commit != "" {
		v += " (" + Commit + ")"
	}
	return v
}
