package version

import "fmt"

// Version contains the application version information.
// Set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/relpub/internal/version.Version=v1.0.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	return fmt.Sprintf("relpub %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

// UserAgent is sent with every repository request.
func UserAgent() string {
	return "relpub/" + Version
}
