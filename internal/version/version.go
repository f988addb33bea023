package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent identifies outbound provider requests.
func UserAgent() string {
	return fmt.Sprintf("stockalert/%s (+commit %s)", Version, Commit)
}

// Summary is the multi-line build description printed by the CLI.
func Summary() string {
	return fmt.Sprintf("stockalert %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}
