// Package version reports the cascade release. The single source of
// truth is the VERSION file embedded at build time, so the binary and
// the repository can never disagree.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the release string, e.g. "0.1.0".
func Get() string {
	return strings.TrimSpace(raw)
}
