// Package version holds the build version, set with -ldflags at release.
package version

// Version is the commons release version.
var Version = "0.1.0-dev"
