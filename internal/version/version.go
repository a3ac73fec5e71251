// Package version provides build and version information for the defusal engine.
package version

// Version is the current release version of the defusal engine.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/DefusalEngine/internal/version.Version=x.y.z"
var Version = "1.0.0"
