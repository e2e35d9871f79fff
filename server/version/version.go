// Package version holds the server version, set at build time.
package version

import "golang.org/x/mod/semver"

// Version is overridden with -ldflags "-X .../server/version.Version=...".
var Version = "0.1.0"

// DevVersion marks development builds.
var DevVersion = Version + "-dev"

// MinSchemaVersion is the oldest server version whose schema this binary
// can serve.
const MinSchemaVersion = "0.1.0"

// GetCurrentVersion returns the effective version for a run mode.
func GetCurrentVersion(mode string) string {
	if mode == "prod" {
		return Version
	}
	return DevVersion
}

// IsVersionGreaterOrEqualThan compares two versions in semver order.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare("v"+version, "v"+target) >= 0
}
