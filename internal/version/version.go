// Package version carries the build version stamped in by the linker:
//
//	go build -ldflags "-X github.com/hmibridge/hmibridge/internal/version.version=1.4.0"
package version

import (
	"fmt"
	"regexp"
	"strings"
)

var version = "dev"

// String returns the build version for the current binary.
func String() string {
	return version
}

// ForTesting overrides the version string and returns a cleanup function
// that restores the original value. Must not be called concurrently.
func ForTesting(v string) func() {
	original := version
	version = v
	return func() { version = original }
}

// describeSuffix matches the "-N-gHASH" tail appended by git describe.
var describeSuffix = regexp.MustCompile(`-\d+-g[0-9a-f]+$`)

// release reduces v to its tagged release: "v1.4.0-3-gabc123" becomes "1.4.0".
func release(v string) string {
	return describeSuffix.ReplaceAllString(strings.TrimPrefix(v, "v"), "")
}

// Format returns v with a "v" prefix; "dev" and "" are returned unchanged.
func Format(v string) string {
	if v == "" || v == "dev" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// Mismatch compares this binary with the version a running daemon reports
// and returns a warning when they belong to different releases. Development
// builds never warn.
func Mismatch(daemonVersion string) string {
	local := version
	if local == "" || daemonVersion == "" || local == "dev" || daemonVersion == "dev" {
		return ""
	}
	if release(local) == release(daemonVersion) {
		return ""
	}
	return fmt.Sprintf("warning: hmibridge %s is talking to hmibridged %s; restart the daemon after upgrading",
		Format(local), Format(daemonVersion))
}
