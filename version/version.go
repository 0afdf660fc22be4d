package version

// Package is the overall, canonical project import path under which the
// package was built.
var Package = "github.com/realsystem/gardening-service-sub002"

// Version indicates which version of the binary is running. This is set to
// the latest release when the repository is tagged.
var Version = "v0.1.0-unknown"

// Revision is filled with the VCS (e.g. git) revision being used to build
// the program at linking time.
var Revision = ""

// BuildTime is filled with the build time at linking time.
var BuildTime = ""
