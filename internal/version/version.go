// Package version tracks the build version and provides semver helpers
// used by the store migrator.
package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the service version, overridable at build time with
// -ldflags "-X github.com/staffsense/staffsense/internal/version.Version=x.y.z".
var Version = "0.3.0"

// DevVersion is the version used in dev mode.
var DevVersion = "0.0.0"

func GetCurrentVersion(mode string) string {
	if mode == "dev" {
		return DevVersion
	}
	return Version
}

// GetSchemaVersion returns the schema version (major.minor.0) for a version string.
func GetSchemaVersion(v string) string {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return v
	}
	return fmt.Sprintf("%s.%s.0", parts[0], parts[1])
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// IsVersionGreaterThan reports whether version a > b in semver order.
func IsVersionGreaterThan(a, b string) bool {
	return semver.Compare(canonical(a), canonical(b)) > 0
}

// IsVersionGreaterOrEqualThan reports whether version a >= b in semver order.
func IsVersionGreaterOrEqualThan(a, b string) bool {
	return semver.Compare(canonical(a), canonical(b)) >= 0
}
