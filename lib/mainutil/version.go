package mainutil

import (
	_ "embed"
	"strings"
)

//go:embed verserve.version
var verserveVersion string

var appVersion string = "unset"

// VerserveVersion returns the version of verserve itself.  It has nothing to
// do with the version file being served.
func VerserveVersion() string {
	return strings.Trim(verserveVersion, " \t\r\n")
}

// SetAppVersion changes the application version.
func SetAppVersion(version string) {
	appVersion = strings.Trim(version, " \t\r\n")
}

// AppVersion returns the application version.
func AppVersion() string {
	return appVersion
}
